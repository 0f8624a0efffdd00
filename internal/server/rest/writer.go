package rest

import "net/http"

// trackingWriter records whether a response was started so the mapper can
// avoid writing a second one.
type trackingWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *trackingWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) started() bool { return w.written }

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *trackingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
