package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/YuminosukeSato/churnscope/core/model"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// formatVersion is bumped whenever the envelope or a payload layout changes.
const formatVersion = 1

// envelope wraps one gob-encoded component. The checksum covers Payload.
type envelope struct {
	Version    int
	Component  string
	ArtifactID string
	Checksum   string
	Payload    []byte
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func seal(component, id string, payload []byte) ([]byte, string, error) {
	sum := checksum(payload)
	b, err := model.EncodeBytes(envelope{
		Version:    formatVersion,
		Component:  component,
		ArtifactID: id,
		Checksum:   sum,
		Payload:    payload,
	})
	return b, sum, err
}

// open verifies an envelope read from the store. Any mismatch is reported as
// a NotFoundError so callers never use a half-written component.
func open(name, component, wantID, wantSum string, raw []byte) ([]byte, error) {
	var env envelope
	if err := model.DecodeBytes(raw, &env); err != nil {
		return nil, errors.NewNotFoundError(name, component, "unreadable envelope")
	}
	switch {
	case env.Version != formatVersion:
		return nil, errors.NewNotFoundError(name, component, fmt.Sprintf("unsupported format version %d", env.Version))
	case env.Component != component:
		return nil, errors.NewNotFoundError(name, component, "envelope holds "+env.Component)
	case env.ArtifactID != wantID:
		return nil, errors.NewNotFoundError(name, component, "belongs to another artifact "+env.ArtifactID)
	case checksum(env.Payload) != env.Checksum:
		return nil, errors.NewNotFoundError(name, component, "checksum mismatch")
	case wantSum != "" && env.Checksum != wantSum:
		return nil, errors.NewNotFoundError(name, component, "checksum differs from manifest")
	}
	return env.Payload, nil
}
