package httpapi

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"
)

// maxRequestBody caps request bodies for both protobuf and JSON payloads.
// A create-asset request is the largest and stays well under 64 KiB.
const maxRequestBody = 64 << 10

const protoContentType = "application/x-protobuf"

var protoMediaTypes = map[string]bool{
	protoContentType:       true,
	"application/protobuf": true,
}

// isProtobuf reports whether the request body is a google.protobuf.Struct.
// Parameters such as charset or proto= are ignored.
func isProtobuf(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && protoMediaTypes[mt]
}

// readProto decodes the body into msg. Bodies over maxRequestBody are an
// error rather than being truncated into a different message.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return err
	}
	if len(body) > maxRequestBody {
		return fmt.Errorf("body exceeds %d bytes", maxRequestBody)
	}
	return proto.Unmarshal(body, msg)
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "encode response")
		return
	}
	w.Header().Set("Content-Type", protoContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
