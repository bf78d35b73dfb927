package csv

import (
	"time"
	"unicode/utf8"

	"github.com/ajitpratap0/quickload/pkg/config"
	"github.com/ajitpratap0/quickload/pkg/errors"
)

// Task is the validated configuration of the csv parser.
//
//	parser:
//	  type: csv
//	  delimiter: ";"
//	  header_line: true
//	  null_string: "\\N"
//	  columns:
//	    - {name: id, type: long}
//	    - {name: at, type: timestamp, format: "2006-01-02 15:04:05"}
type Task struct {
	Delimiter            string              `json:"delimiter"`
	Comment              string              `json:"comment,omitempty"`
	SkipHeaderLines      int                 `json:"skip_header_lines"`
	NullString           string              `json:"null_string,omitempty"`
	TrimSpaces           bool                `json:"trim_spaces"`
	LazyQuotes           bool                `json:"lazy_quotes"`
	TimestampFormats     []string            `json:"timestamp_formats"`
	Timezone             string              `json:"timezone"`
	StopOnInvalidRecord  bool                `json:"stop_on_invalid_record"`
	AllowExtraColumns    bool                `json:"allow_extra_columns"`
	AllowOptionalColumns bool                `json:"allow_optional_columns"`
	Schema               config.SchemaConfig `json:"schema"`
}

// LoadTask validates the parser section.
func LoadTask(src config.Source) (Task, error) {
	var (
		t   Task
		err error
	)

	if t.Schema, err = config.LoadSchemaConfig(src, "columns"); err != nil {
		return t, err
	}
	if t.Delimiter, err = src.GetString("delimiter", ","); err != nil {
		return t, err
	}
	if err = singleRune(src, "delimiter", t.Delimiter, false); err != nil {
		return t, err
	}
	if t.Comment, err = src.GetString("comment", ""); err != nil {
		return t, err
	}
	if err = singleRune(src, "comment", t.Comment, true); err != nil {
		return t, err
	}

	// column_header is the older spelling of header_line
	header, err := src.GetBool("column_header", false)
	if err != nil {
		return t, err
	}
	if header, err = src.GetBool("header_line", header); err != nil {
		return t, err
	}
	def := 0
	if header {
		def = 1
	}
	if t.SkipHeaderLines, err = src.GetInt("skip_header_lines", def); err != nil {
		return t, err
	}
	if t.SkipHeaderLines < 0 {
		return t, errors.New(errors.ErrorTypeConfig, "skip_header_lines must not be negative").
			WithDetail("key", src.Path()+".skip_header_lines")
	}

	if t.NullString, err = src.GetString("null_string", ""); err != nil {
		return t, err
	}
	if t.TrimSpaces, err = src.GetBool("trim_spaces", false); err != nil {
		return t, err
	}
	if t.LazyQuotes, err = src.GetBool("lazy_quotes", false); err != nil {
		return t, err
	}

	defFormat, err := src.GetString("default_timestamp_format", time.RFC3339Nano)
	if err != nil {
		return t, err
	}
	t.TimestampFormats = t.Schema.Formats(defFormat)

	if t.Timezone, err = src.GetString("default_timezone", "UTC"); err != nil {
		return t, err
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		return t, errors.Wrap(err, errors.ErrorTypeConfig, "invalid default_timezone").
			WithDetail("key", src.Path()+".default_timezone")
	}

	if t.StopOnInvalidRecord, err = src.GetBool("stop_on_invalid_record", false); err != nil {
		return t, err
	}
	if t.AllowExtraColumns, err = src.GetBool("allow_extra_columns", false); err != nil {
		return t, err
	}
	if t.AllowOptionalColumns, err = src.GetBool("allow_optional_columns", false); err != nil {
		return t, err
	}
	return t, nil
}

func singleRune(src config.Source, key, v string, optional bool) error {
	if optional && v == "" {
		return nil
	}
	if utf8.RuneCountInString(v) != 1 || v == "\"" || v == "\r" || v == "\n" {
		return errors.Newf(errors.ErrorTypeConfig, "%s must be a single character other than quote or newline, got %q", key, v).
			WithDetail("key", src.Path()+"."+key)
	}
	return nil
}
