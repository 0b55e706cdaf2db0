package graph

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// VertexID uniquely identifies a vertex within the application graph.
type VertexID string

// PartitionID identifies a vertex partition. Partitions are spread across the
// workers of a job; the partition resolver maps vertices to partitions.
type PartitionID int

// Edge is a directed edge from the owning vertex to Target.
type Edge struct {
	Target VertexID
	Weight float64
}

// Vertex is a unit of the application graph: an identifier, an opaque value
// managed by the application's compute function, and outgoing edges.
type Vertex struct {
	ID    VertexID
	Value []byte
	Edges []Edge
}

//Marshal - json encoding of Vertex
func (v *Vertex) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (v *Vertex) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(v); err != nil {
		return err
	}

	return nil
}
