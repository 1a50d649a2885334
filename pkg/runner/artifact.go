package runner

import (
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type artifact struct {
	size    int64
	excerpt string
	text    string
}

// readArtifact reads the captured markup file bounded by maxBytes and
// decodes it leniently: undecodable byte sequences become U+FFFD rather
// than failing. The excerpt is the first excerptBytes of the raw capture,
// decoded the same way. size reports the file's true on-disk size even
// when the read is truncated.
func readArtifact(path string, maxBytes int64, excerptBytes int) (*artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, err
	}

	excerpt := raw
	if len(excerpt) > excerptBytes {
		excerpt = excerpt[:excerptBytes]
	}

	return &artifact{
		size:    stat.Size(),
		excerpt: decodeLenient(excerpt),
		text:    decodeLenient(raw),
	}, nil
}

// decodeLenient decodes bytes as UTF-8, replacing invalid sequences with
// the replacement character. It never fails on ordinary input.
func decodeLenient(b []byte) string {
	decoded, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}
