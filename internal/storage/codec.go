package storage

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/DobryySoul/recipeshare/internal/recipe"
)

// Codec serializes the full record list for the backing file.
type Codec interface {
	Marshal(records []recipe.Record) ([]byte, error)
	Unmarshal(data []byte) ([]recipe.Record, error)
}

// JSONCodec writes the record list as a JSON array. It is the default and
// matches the format other nodes and tools expect.
type JSONCodec struct{}

func (JSONCodec) Marshal(records []recipe.Record) ([]byte, error) {
	if records == nil {
		records = []recipe.Record{}
	}
	return json.Marshal(records)
}

func (JSONCodec) Unmarshal(data []byte) ([]recipe.Record, error) {
	var records []recipe.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GobCodec uses encoding/gob. The file is smaller but only readable by Go.
type GobCodec struct{}

type gobFile struct {
	Records []recipe.Record
}

func (GobCodec) Marshal(records []recipe.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(gobFile{Records: records}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GobCodec) Unmarshal(data []byte) ([]recipe.Record, error) {
	var file gobFile
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&file); err != nil {
		return nil, err
	}
	return file.Records, nil
}
