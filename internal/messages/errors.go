package messages

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/nexarchive/internal/constants"
)

// kindHints are shown under a rejected control request.
var kindHints = map[string]string{
	"already_running":    "a job is active, use `ctl queue` or `ctl cancel` first",
	"already_queued":     "the chat is already active or waiting in the queue",
	"invalid_transition": "check the current state with `nexarchive status`",
	"invalid_config":     "see `ctl get-config` for the accepted keys",
}

// FormatConfigLoadError formats a configuration loading error message.
func FormatConfigLoadError(err error) string {
	return fmt.Sprintf(constants.MsgConfigLoadError, err)
}

// FormatValidationErrors numbers config validation errors, one per line.
func FormatValidationErrors(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(constants.MsgConfigValidationError)
	for i, err := range errs {
		fmt.Fprintf(&b, constants.MsgConfigValidatePrefix, fmt.Sprintf("%d. %v", i+1, err))
	}
	return b.String()
}

// FormatRequestError formats a control request rejected by the daemon.
// kind is the archive error kind and may be empty.
func FormatRequestError(request, reason, kind string) string {
	out := fmt.Sprintf(constants.MsgRequestFailed, request, reason)
	if hint, ok := kindHints[kind]; ok {
		out += "   💡 " + hint + "\n"
	}
	return out
}
