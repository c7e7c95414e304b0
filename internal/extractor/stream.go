package extractor

import (
	"bufio"
	"io"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ContainerScanner reads an unbounded concatenation of page fragments and
// yields the raw markup of each results container once its closing tag is seen.
// Only the container currently being captured is held in memory.
//
// Containers never nest. A container start tag seen while another is open
// means the open one was truncated, as happens when a fetch is killed mid-write
// and resumed; the partial capture is dropped and capture restarts there.
type ContainerScanner struct {
	z           *html.Tokenizer
	containerID string
	logger      *zap.Logger
	buf         []byte
	tag         []byte
	discarded   int
}

// NewContainerScanner wraps r. containerID is the id attribute of the results
// container. logger may be nil.
func NewContainerScanner(r io.Reader, containerID string, logger *zap.Logger) *ContainerScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContainerScanner{
		z:           html.NewTokenizer(bufio.NewReader(r)),
		containerID: containerID,
		logger:      logger,
	}
}

// Discarded reports how many incomplete containers have been dropped so far.
func (s *ContainerScanner) Discarded() int {
	return s.discarded
}

// Next returns the markup of the next complete container. The returned slice is
// only valid until the following call. io.EOF marks the end of input; a
// container left open at end of input is discarded.
func (s *ContainerScanner) Next() ([]byte, error) {
	capturing := false
	depth := 0
	s.buf = s.buf[:0]
	for {
		tt := s.z.Next()
		if tt == html.ErrorToken {
			if capturing {
				s.discard("unclosed at end of input", len(s.buf))
			}
			return nil, s.z.Err()
		}
		if capturing {
			s.buf = append(s.buf, s.z.Raw()...)
		}
		switch tt {
		case html.StartTagToken:
			// TagName and TagAttr may rewrite the raw bytes in place.
			s.tag = append(s.tag[:0], s.z.Raw()...)
			name, hasAttr := s.z.TagName()
			if string(name) != "div" {
				continue
			}
			isContainer := hasAttr && s.hasContainerID()
			switch {
			case isContainer && capturing:
				s.discard("truncated by the next container", len(s.buf)-len(s.tag))
				s.buf = append(s.buf[:0], s.tag...)
				depth = 1
			case isContainer:
				capturing = true
				depth = 1
				s.buf = append(s.buf, s.tag...)
			case capturing:
				depth++
			}
		case html.EndTagToken:
			if !capturing {
				continue
			}
			name, _ := s.z.TagName()
			if string(name) != "div" {
				continue
			}
			depth--
			if depth == 0 {
				return s.buf, nil
			}
		}
	}
}

func (s *ContainerScanner) hasContainerID() bool {
	for {
		key, val, more := s.z.TagAttr()
		if string(key) == "id" && string(val) == s.containerID {
			return true
		}
		if !more {
			return false
		}
	}
}

func (s *ContainerScanner) discard(reason string, size int) {
	s.discarded++
	s.logger.Warn("Discarding incomplete results container",
		zap.String("container_id", s.containerID),
		zap.String("reason", reason),
		zap.Int("bytes", size),
	)
}
