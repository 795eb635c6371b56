package docker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/groundeffect/whalesnake/internal/model"
)

// successfulBuildRegex matches the classic builder's final success line.
var successfulBuildRegex = regexp.MustCompile(`(?m)^Successfully built ([0-9a-f]{12})$`)

// streamResult is what a daemon progress stream boiled down to.
type streamResult struct {
	// Log is the concatenation of every "stream" field, in order.
	Log string

	// LastStatus is the last non-empty "status" field.
	LastStatus string

	// ErrorDetail is the daemon's error message, if one was reported.
	ErrorDetail string

	// ImageID is the image id reported through an "aux" message, if any.
	ImageID string
}

// decodeStream reads a sequence of JSON progress messages. The daemon may
// pack several objects into one chunk; json.Decoder splits them.
// Processing stops at the first error message.
func decodeStream(r io.Reader) (streamResult, error) {
	var (
		res streamResult
		log strings.Builder
	)
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			res.Log = log.String()
			return res, fmt.Errorf("decode daemon stream: %w", err)
		}

		log.WriteString(msg.Stream)
		if msg.Status != "" {
			res.LastStatus = msg.Status
		}
		if msg.Aux != nil {
			var aux struct {
				ID string `json:"ID"`
			}
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				res.ImageID = model.NormalizeContentID(aux.ID)
			}
		}
		if msg.Error != nil && msg.Error.Message != "" {
			res.ErrorDetail = msg.Error.Message
			break
		}
	}
	res.Log = log.String()
	return res, nil
}

// decodeBuildStream interprets a build stream. A build succeeded if the
// daemon reported an image id through "aux" or a "Successfully built" line.
// Any other outcome yields a *model.BuildError carrying the log so far; its
// message is the daemon's error detail, or else the last log line.
func decodeBuildStream(r io.Reader) (streamResult, error) {
	res, err := decodeStream(r)
	if err != nil {
		return res, &model.BuildError{Message: err.Error(), Log: res.Log}
	}
	if res.ErrorDetail != "" {
		return res, &model.BuildError{Message: res.ErrorDetail, Log: res.Log}
	}
	if m := successfulBuildRegex.FindStringSubmatch(res.Log); m != nil {
		if res.ImageID == "" {
			res.ImageID = m[1]
		}
		return res, nil
	}
	if res.ImageID != "" {
		return res, nil
	}
	msg := lastLine(res.Log)
	if msg == "" {
		msg = "daemon did not report a built image"
	}
	return res, &model.BuildError{Message: msg, Log: res.Log}
}

// lastLine returns the last non-blank line of s, trimmed.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n "), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// decodePullStream interprets a pull stream. An error message from the
// daemon becomes model.ErrPullFailed.
func decodePullStream(r io.Reader) (streamResult, error) {
	res, err := decodeStream(r)
	if err != nil {
		return res, fmt.Errorf("%w: %w", model.ErrPullFailed, err)
	}
	if res.ErrorDetail != "" {
		return res, fmt.Errorf("%w: %s", model.ErrPullFailed, res.ErrorDetail)
	}
	return res, nil
}
