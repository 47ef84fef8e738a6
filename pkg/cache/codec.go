package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/marmos91/dittosite/pkg/remote"
)

// encMode uses Core Deterministic Encoding so the same listing always
// serializes to the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeMetadata(md *remote.Metadata) ([]byte, error) {
	return encMode.Marshal(md)
}

func decodeMetadata(data []byte) (*remote.Metadata, error) {
	var md remote.Metadata
	if err := decMode.Unmarshal(data, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// encodeLink stores a link as "url|expiry".
func encodeLink(link *remote.Link) []byte {
	return []byte(link.URL + "|" + remote.FormatTime(link.Expires))
}

func decodeLink(data []byte) (*remote.Link, error) {
	s := string(data)
	i := strings.LastIndexByte(s, '|')
	if i < 0 {
		return nil, fmt.Errorf("malformed link entry")
	}
	expires, err := time.Parse(remote.TimeFormat, s[i+1:])
	if err != nil {
		return nil, fmt.Errorf("malformed link expiry: %w", err)
	}
	return &remote.Link{URL: s[:i], Expires: expires}, nil
}
