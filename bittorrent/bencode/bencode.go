// Package bencode implements the subset of bencoding (BEP 3) the tracker
// needs to write: dictionaries, lists, byte strings, and integers. It uses
// type assertion instead of reflection on the hot announce/scrape path,
// mirroring the teacher's frontend/http/bencode package.
package bencode

// Dict represents a bencoded dictionary. Keys are written in sorted order,
// as BEP 3 requires for canonical encoding.
type Dict map[string]interface{}

// NewDict allocates an empty Dict.
func NewDict() Dict { return make(Dict) }

// List represents a bencoded list.
type List []interface{}
