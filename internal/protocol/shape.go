package protocol

import (
	"encoding/json"
	"fmt"
)

// Shape kind tags on the wire
const (
	KindRect   = "rect"
	KindCircle = "circle"
	KindPencil = "pencil"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// An atomic drawable unit. Shapes are immutable once created; edits are
// create/delete only, so every variant just carries its geometry and the
// client-generated identifier used for cross-peer de-duplication.
type Shape interface {
	ShapeID() string
	Kind() string
}

type Rect struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) ShapeID() string { return r.ID }
func (r Rect) Kind() string    { return KindRect }

type Circle struct {
	ID      string  `json:"id"`
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Radius  float64 `json:"radius"`
}

func (c Circle) ShapeID() string { return c.ID }
func (c Circle) Kind() string    { return KindCircle }

type Pencil struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`
}

func (p Pencil) ShapeID() string { return p.ID }
func (p Pencil) Kind() string    { return KindPencil }

type rectWire struct {
	Type string `json:"type"`
	Rect
}

type circleWire struct {
	Type string `json:"type"`
	Circle
}

type pencilWire struct {
	Type string `json:"type"`
	Pencil
}

// Serializes a shape with its discriminator tag
func MarshalShape(s Shape) ([]byte, error) {
	switch v := s.(type) {
	case Rect:
		return json.Marshal(rectWire{Type: KindRect, Rect: v})
	case Circle:
		return json.Marshal(circleWire{Type: KindCircle, Circle: v})
	case Pencil:
		return json.Marshal(pencilWire{Type: KindPencil, Pencil: v})
	default:
		return nil, fmt.Errorf("unknown shape kind %T", s)
	}
}

// Decodes a tagged shape object
func UnmarshalShape(data []byte) (Shape, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("parse shape: %w", err)
	}

	switch tag.Type {
	case KindRect:
		var r Rect
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return r, nil
	case KindCircle:
		var c Circle
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return c, nil
	case KindPencil:
		var p Pencil
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown shape type %q", tag.Type)
	}
}

type messageWire struct {
	Shape json.RawMessage `json:"shape"`
}

// Wraps a shape in the {"shape": ...} envelope carried as the chat
// frame's message string
func EncodeShapeMessage(s Shape) (string, error) {
	raw, err := MarshalShape(s)
	if err != nil {
		return "", err
	}
	msg, err := json.Marshal(messageWire{Shape: raw})
	if err != nil {
		return "", err
	}
	return string(msg), nil
}

// Unwraps the {"shape": ...} envelope from a chat message string
func DecodeShapeMessage(msg string) (Shape, error) {
	var w messageWire
	if err := json.Unmarshal([]byte(msg), &w); err != nil {
		return nil, fmt.Errorf("parse shape message: %w", err)
	}
	if len(w.Shape) == 0 {
		return nil, fmt.Errorf("shape message missing shape")
	}
	return UnmarshalShape(w.Shape)
}
