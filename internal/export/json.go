package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// WriteJSON writes the document as indented JSON.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(doc), "export: encode json")
}
