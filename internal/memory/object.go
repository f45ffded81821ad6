package memory

import (
	"encoding/json"
	"fmt"
)

type objectKind uint8

const (
	objectNone objectKind = iota
	objectEntity
	objectLiteral
)

// Object is the target of a fact: either a reference to another entity
// (a relationship) or a literal value (an attribute). The zero Object is
// neither and fails validation.
type Object struct {
	kind  objectKind
	value string
}

// Relationship returns an Object pointing at another entity.
func Relationship(entityID string) Object {
	return Object{kind: objectEntity, value: entityID}
}

// Attribute returns an Object holding a literal value.
func Attribute(literal string) Object {
	return Object{kind: objectLiteral, value: literal}
}

// EntityID returns the referenced entity for relationships.
func (o Object) EntityID() (string, bool) {
	return o.value, o.kind == objectEntity
}

// Literal returns the value for attributes.
func (o Object) Literal() (string, bool) {
	return o.value, o.kind == objectLiteral
}

func (o Object) IsRelationship() bool { return o.kind == objectEntity }
func (o Object) IsAttribute() bool    { return o.kind == objectLiteral }
func (o Object) IsZero() bool         { return o.kind == objectNone }

// Equal compares resolved values. A relationship never equals an attribute,
// even when the entity ID and the literal happen to be the same string.
func (o Object) Equal(other Object) bool {
	return o.kind == other.kind && o.value == other.value
}

func (o Object) String() string {
	switch o.kind {
	case objectEntity:
		return "entity:" + o.value
	case objectLiteral:
		return o.value
	default:
		return ""
	}
}

// Columns returns the storage form: object_id and object_value, one of them empty.
func (o Object) Columns() (objectID, objectValue string) {
	switch o.kind {
	case objectEntity:
		return o.value, ""
	case objectLiteral:
		return "", o.value
	default:
		return "", ""
	}
}

// ObjectFromColumns rebuilds an Object from its storage form. objectValue wins
// when both are present, matching how the narrative resolves values.
func ObjectFromColumns(objectID, objectValue string) Object {
	switch {
	case objectValue != "":
		return Attribute(objectValue)
	case objectID != "":
		return Relationship(objectID)
	default:
		return Object{}
	}
}

type objectJSON struct {
	ObjectID    string `json:"object_id,omitempty"`
	ObjectValue string `json:"object_value,omitempty"`
}

func (o Object) MarshalJSON() ([]byte, error) {
	id, val := o.Columns()
	return json.Marshal(objectJSON{ObjectID: id, ObjectValue: val})
}

func (o *Object) UnmarshalJSON(data []byte) error {
	var raw objectJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode fact object: %w", err)
	}
	if raw.ObjectID != "" && raw.ObjectValue != "" {
		return fmt.Errorf("fact object: object_id and object_value are mutually exclusive")
	}
	*o = ObjectFromColumns(raw.ObjectID, raw.ObjectValue)
	return nil
}
