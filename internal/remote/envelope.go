// Package remote speaks to the cloud document store: a generic
// authenticated key-value document API addressed as
// users/{uid}/articles/{articleId}. The transport requires explicit field
// typing, so every article field is serialized into a typed-value envelope
// on write and decoded symmetrically on read.
package remote

import (
	"time"

	"readlater/internal/domain"
)

// Value is one typed field in the document envelope. Exactly one member is
// set; a value with no member set reads as null.
type Value struct {
	StringValue    *string    `json:"stringValue,omitempty"`
	BooleanValue   *bool      `json:"booleanValue,omitempty"`
	IntegerValue   *int64     `json:"integerValue,omitempty"`
	TimestampValue *time.Time `json:"timestampValue,omitempty"`
	ArrayValue     *Array     `json:"arrayValue,omitempty"`
	MapValue       *Map       `json:"mapValue,omitempty"`
	NullValue      bool       `json:"nullValue,omitempty"`
}

// Array wraps an ordered list of values.
type Array struct {
	Values []Value `json:"values"`
}

// Map wraps a nested field set.
type Map struct {
	Fields map[string]Value `json:"fields"`
}

func str(s string) Value { return Value{StringValue: &s} }

func boolean(b bool) Value { return Value{BooleanValue: &b} }

func integer(i int64) Value { return Value{IntegerValue: &i} }

func timestamp(t time.Time) Value {
	u := t.UTC()
	return Value{TimestampValue: &u}
}

func null() Value { return Value{NullValue: true} }

func strArray(items []string) Value {
	values := make([]Value, 0, len(items))
	for _, item := range items {
		values = append(values, str(item))
	}
	return Value{ArrayValue: &Array{Values: values}}
}

// EncodeArticle serializes every article field into the envelope.
func EncodeArticle(a domain.Article) map[string]Value {
	fields := map[string]Value{
		"id":            str(a.ID),
		"url":           str(a.URL),
		"title":         str(a.Title),
		"category":      str(a.Category),
		"tags":          strArray(a.Tags),
		"isRead":        boolean(a.IsRead),
		"isFavorite":    boolean(a.IsFavorite),
		"isArchived":    boolean(a.IsArchived),
		"dateAdded":     timestamp(a.DateAdded),
		"lastModified":  timestamp(a.LastModified),
		"thumbnail":     str(a.Thumbnail),
		"excerpt":       str(a.Excerpt),
		"content":       str(a.Content),
		"highlights":    encodeHighlights(a.Highlights),
		"readProgress":  integer(int64(a.ReadProgress)),
		"readCount":     integer(int64(a.ReadCount)),
		"totalReadTime": integer(a.TotalReadTime),
	}

	if a.FolderID != nil {
		fields["folderId"] = str(*a.FolderID)
	} else {
		fields["folderId"] = null()
	}
	if a.LastReadAt != nil {
		fields["lastReadAt"] = timestamp(*a.LastReadAt)
	} else {
		fields["lastReadAt"] = null()
	}

	return fields
}

func encodeHighlights(highlights []domain.Highlight) Value {
	values := make([]Value, 0, len(highlights))
	for _, h := range highlights {
		values = append(values, Value{MapValue: &Map{Fields: map[string]Value{
			"id":        str(h.ID),
			"text":      str(h.Text),
			"color":     str(h.Color),
			"note":      str(h.Note),
			"tags":      strArray(h.Tags),
			"timestamp": timestamp(h.Timestamp),
		}}})
	}
	return Value{ArrayValue: &Array{Values: values}}
}

// DecodeArticle reads an envelope back into an article, defaulting absent
// optional fields: folderId to null, booleans to false, tags to an empty
// list, a missing dateAdded to now.
func DecodeArticle(fields map[string]Value) domain.Article {
	a := domain.Article{
		ID:            fields["id"].asString(),
		URL:           fields["url"].asString(),
		Title:         fields["title"].asString(),
		Category:      fields["category"].asString(),
		Tags:          fields["tags"].asStringArray(),
		IsRead:        fields["isRead"].asBool(),
		IsFavorite:    fields["isFavorite"].asBool(),
		IsArchived:    fields["isArchived"].asBool(),
		DateAdded:     fields["dateAdded"].asTime(),
		LastModified:  fields["lastModified"].asTime(),
		Thumbnail:     fields["thumbnail"].asString(),
		Excerpt:       fields["excerpt"].asString(),
		Content:       fields["content"].asString(),
		Highlights:    decodeHighlights(fields["highlights"]),
		ReadProgress:  int(fields["readProgress"].asInt()),
		ReadCount:     int(fields["readCount"].asInt()),
		TotalReadTime: fields["totalReadTime"].asInt(),
	}

	if v, ok := fields["folderId"]; ok && v.StringValue != nil {
		a.FolderID = v.StringValue
	}
	if v, ok := fields["lastReadAt"]; ok && v.TimestampValue != nil {
		t := v.TimestampValue.UTC()
		a.LastReadAt = &t
	}

	a.Normalize()
	return a
}

func decodeHighlights(v Value) []domain.Highlight {
	if v.ArrayValue == nil {
		return []domain.Highlight{}
	}
	highlights := make([]domain.Highlight, 0, len(v.ArrayValue.Values))
	for _, item := range v.ArrayValue.Values {
		if item.MapValue == nil {
			continue
		}
		f := item.MapValue.Fields
		highlights = append(highlights, domain.Highlight{
			ID:        f["id"].asString(),
			Text:      f["text"].asString(),
			Color:     f["color"].asString(),
			Note:      f["note"].asString(),
			Tags:      f["tags"].asStringArray(),
			Timestamp: f["timestamp"].asTime(),
		})
	}
	return highlights
}

func (v Value) asString() string {
	if v.StringValue == nil {
		return ""
	}
	return *v.StringValue
}

func (v Value) asBool() bool {
	return v.BooleanValue != nil && *v.BooleanValue
}

func (v Value) asInt() int64 {
	if v.IntegerValue == nil {
		return 0
	}
	return *v.IntegerValue
}

func (v Value) asTime() time.Time {
	if v.TimestampValue == nil {
		return time.Time{}
	}
	return v.TimestampValue.UTC()
}

func (v Value) asStringArray() []string {
	if v.ArrayValue == nil {
		return []string{}
	}
	items := make([]string, 0, len(v.ArrayValue.Values))
	for _, item := range v.ArrayValue.Values {
		items = append(items, item.asString())
	}
	return items
}
