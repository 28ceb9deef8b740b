package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v2"

	"VerificarSmsPlatform/pkg/validation"
)

// Format представляет тип форматирования вывода
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat разбирает имя формата
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return FormatTable, nil
	}
	allowed := []string{string(FormatTable), string(FormatJSON), string(FormatYAML)}
	if err := validation.NewValidator().ValidateEnum(name, allowed, "output"); err != nil {
		return "", err
	}
	return Format(name), nil
}

// Table данные для табличного вывода
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable создает таблицу с заголовками
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow добавляет строку
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Tabular реализуется данными, у которых есть табличное представление
type Tabular interface {
	Table() *Table
}

// Write выводит данные в выбранном формате
func Write(w io.Writer, format Format, data interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		return writeYAML(w, data)
	default:
		if tabular, ok := data.(Tabular); ok {
			return writeTable(w, tabular.Table())
		}
		_, err := fmt.Fprintln(w, data)
		return err
	}
}

// writeYAML кодирует данные через их JSON представление, чтобы имена полей совпадали с API
func writeYAML(w io.Writer, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to convert data: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func writeTable(w io.Writer, table *Table) error {
	if len(table.Rows) == 0 {
		_, err := fmt.Fprintln(w, "No data found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(table.Headers, "\t"))
	separators := make([]string, len(table.Headers))
	for i, h := range table.Headers {
		separators[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(separators, "\t"))
	for _, row := range table.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
