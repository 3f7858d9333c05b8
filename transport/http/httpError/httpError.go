package httpError

import (
	"encoding/json"
	"net/http"

	"github.com/autom8ter/pagestream/errors"
)

// Error writes the error as json with the http status of its code. Uncoded errors are internal
func Error(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var e = errors.Extract(err)
	if cde := e.Code; cde >= 400 && cde < 600 {
		status = int(cde)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the wrapped error may leak store internals
	json.NewEncoder(w).Encode(e.RemoveError())
}
