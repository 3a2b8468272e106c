package domain

// AnnotationType enumerates the drawing primitives a technician can place.
type AnnotationType string

const (
	AnnotationPointer AnnotationType = "pointer"
	AnnotationRect    AnnotationType = "rect"
	AnnotationCircle  AnnotationType = "circle"
	AnnotationArrow   AnnotationType = "arrow"
	AnnotationText    AnnotationType = "text"
)

// Annotation is a single ephemeral drawing primitive. Coordinates are
// normalized to [0,100] of the viewport. The relay forwards annotations
// as opaque payloads; this shape documents the client contract only.
type Annotation struct {
	ID     string         `json:"id"`
	Type   AnnotationType `json:"type"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Width  float64        `json:"width,omitempty"`
	Height float64        `json:"height,omitempty"`
	Color  string         `json:"color"`
	Text   string         `json:"text,omitempty"`
}
