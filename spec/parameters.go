package spec

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Parameters is a string property bag persisted as JSON
type Parameters map[string]string

func (p *Parameters) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*p = make(Parameters)
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("Failed to unmarshal jsonb value: %v", value)
	}
	if len(bytes) == 0 {
		*p = make(Parameters)
		return nil
	}
	fresh := make(Parameters)
	if err := json.Unmarshal(bytes, &fresh); err != nil {
		return err
	}
	*p = fresh
	return nil
}

func (p Parameters) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (Parameters) GormDataType() string {
	return "json"
}

func (Parameters) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "sqlite":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
