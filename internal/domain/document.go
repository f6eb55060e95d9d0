package domain

// DocumentRef addresses one document. Collection may be a nested path such as "users/u1/favorites".
type DocumentRef struct {
	Collection string
	ID         string
}

// Ref builds a DocumentRef.
func Ref(collection, id string) DocumentRef {
	return DocumentRef{Collection: collection, ID: id}
}

// Path returns "collection/id".
func (r DocumentRef) Path() string { return r.Collection + "/" + r.ID }

// Sub returns the path of a subcollection under this document.
func (r DocumentRef) Sub(name string) string { return r.Path() + "/" + name }

// Document is a stored document snapshot.
type Document struct {
	Ref  DocumentRef
	Data map[string]interface{}
}

// String returns a string field, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// WriteKind distinguishes batched write operations.
type WriteKind int

const (
	WriteUpdate WriteKind = iota
	WriteDelete
)

// WriteOp is one operation inside an atomic batch.
type WriteOp struct {
	Kind   WriteKind
	Ref    DocumentRef
	Fields map[string]interface{} // only for WriteUpdate
}

// UpdateOp merges fields into ref.
func UpdateOp(ref DocumentRef, fields map[string]interface{}) WriteOp {
	return WriteOp{Kind: WriteUpdate, Ref: ref, Fields: fields}
}

// DeleteOp deletes ref.
func DeleteOp(ref DocumentRef) WriteOp {
	return WriteOp{Kind: WriteDelete, Ref: ref}
}
