package domain

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Media is a binary blob with its MIME type, used for uploaded sources and
// generated artifacts alike.
type Media struct {
	MIMEType string
	Data     []byte
}

// IsZero reports whether the media carries no payload. Safe on nil.
func (m *Media) IsZero() bool {
	return m == nil || len(m.Data) == 0
}

// Kind classifies the media by MIME prefix.
func (m *Media) Kind() MediaKind {
	if m != nil && strings.HasPrefix(strings.ToLower(m.MIMEType), "video") {
		return MediaKindVideo
	}
	return MediaKindImage
}

// DataURL encodes the media as a data: URL.
func (m Media) DataURL() string {
	mime := m.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(m.Data)
}

var errMalformedDataURL = errors.New("malformed data url")

// ParseDataURL decodes a base64 data: URL such as the ones produced by browser
// file readers.
func ParseDataURL(raw string) (Media, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "data:") {
		return Media{}, NewError(ErrorKindValidation, "media must be a data url", errMalformedDataURL)
	}
	header, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return Media{}, NewError(ErrorKindValidation, "media must be a data url", errMalformedDataURL)
	}
	mime, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return Media{}, NewError(ErrorKindValidation, "media data url must be base64 encoded", errMalformedDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Media{}, NewError(ErrorKindValidation, "media payload is not valid base64", err)
	}
	return Media{MIMEType: mime, Data: data}, nil
}
