package spec

import (
	"bytes"
	_ "embed"
	"hash/fnv"
	"net/http"
	"strconv"
	"time"
)

//go:embed openapi.yaml
var openapiYAML []byte

// OpenAPIHandler serves the embedded courier API document. Conditional requests
// against its ETag are answered with 304 by http.ServeContent.
func OpenAPIHandler() http.HandlerFunc {
	h := fnv.New64a()
	_, _ = h.Write(openapiYAML)
	etag := `"openapi-` + strconv.FormatUint(h.Sum64(), 16) + `"`

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Set("ETag", etag)
		http.ServeContent(w, r, "openapi.yaml", time.Time{}, bytes.NewReader(openapiYAML))
	}
}
