package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// Chapter is one entry of a video's chapter list.
type Chapter struct {
	StartSeconds int     `json:"start_seconds"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
}

// Chapters is stored as a jsonb array ordered by start offset.
type Chapters []Chapter

func (c *Chapters) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Chapters{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("Chapters: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*c = Chapters{}
		return nil
	}
	var out Chapters
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("Chapters: decode: %w", err)
	}
	*c = out
	return nil
}

func (c Chapters) Value() (driver.Value, error) {
	if c == nil {
		c = Chapters{}
	}
	raw, err := json.Marshal(c.Sorted())
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Sorted returns a copy ordered by start offset.
func (c Chapters) Sorted() Chapters {
	out := make(Chapters, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartSeconds < out[j].StartSeconds })
	return out
}
