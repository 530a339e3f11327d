package oai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// cursorVersion tags the resumption token wire format. Tokens issued by a
// prior deployment with a different layout decode to a version mismatch
// instead of silently misreading fields.
const cursorVersion = 1

// ResumptionCursor is the continuation state embedded in a resumption token.
// It carries the original selection criteria verbatim, so a token fully
// determines the follow-up query regardless of any fresh parameters supplied
// alongside it.
type ResumptionCursor struct {
	Version int    `json:"v"`
	Offset  int    `json:"o"`
	From    string `json:"f,omitempty"`
	Until   string `json:"u,omitempty"`
	Set     string `json:"s,omitempty"`
	Prefix  string `json:"p"`
}

// Encode serializes the cursor into an opaque URL-safe token
func (c ResumptionCursor) Encode() string {
	c.Version = cursorVersion
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a previously issued token. Any failure, including a
// version mismatch, must surface to the harvester as badResumptionToken.
func DecodeCursor(token string) (*ResumptionCursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode resumption token: %w", err)
	}

	var cursor ResumptionCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("failed to parse resumption token: %w", err)
	}

	if cursor.Version != cursorVersion {
		return nil, fmt.Errorf("unsupported resumption token version: %d", cursor.Version)
	}

	return &cursor, nil
}
