package domain

import (
	"strconv"
	"strings"
)

// Store keys for persisted settings.
const (
	KeyCredential          = "credential"
	KeySocraticQuestioning = "socratic_questioning"
	KeyErrorPrevention     = "error_prevention"
	KeyInteractiveChecks   = "interactive_checks"
	KeyDebugMode           = "debug_mode"
)

// SettingsKeys lists every key a Settings record is persisted under.
var SettingsKeys = []string{
	KeyCredential,
	KeySocraticQuestioning,
	KeyErrorPrevention,
	KeyInteractiveChecks,
	KeyDebugMode,
}

// Flags are the boolean feature switches.
type Flags struct {
	SocraticQuestioning bool `json:"socratic_questioning"`
	ErrorPrevention     bool `json:"error_prevention"`
	InteractiveChecks   bool `json:"interactive_checks"`
	DebugMode           bool `json:"debug_mode"`
}

// Settings is the mutable user configuration. An empty Credential means absent.
type Settings struct {
	Credential string `json:"-"`
	Flags
}

// HasCredential reports whether a usable credential is present.
func (s Settings) HasCredential() bool {
	return NormalizeCredential(s.Credential) != ""
}

// NormalizeCredential trims the credential; blank values collapse to absent.
func NormalizeCredential(credential string) string {
	return strings.TrimSpace(credential)
}

// SettingsPatch is a partial update. Nil fields are left unchanged.
type SettingsPatch struct {
	Credential          *string `json:"credential,omitempty"`
	SocraticQuestioning *bool   `json:"socratic_questioning,omitempty"`
	ErrorPrevention     *bool   `json:"error_prevention,omitempty"`
	InteractiveChecks   *bool   `json:"interactive_checks,omitempty"`
	DebugMode           *bool   `json:"debug_mode,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.Credential == nil && p.SocraticQuestioning == nil && p.ErrorPrevention == nil &&
		p.InteractiveChecks == nil && p.DebugMode == nil
}

// Apply returns a copy of s with the patch fields replaced.
func (s Settings) Apply(p SettingsPatch) Settings {
	out := s
	if p.Credential != nil {
		out.Credential = NormalizeCredential(*p.Credential)
	}
	if p.SocraticQuestioning != nil {
		out.SocraticQuestioning = *p.SocraticQuestioning
	}
	if p.ErrorPrevention != nil {
		out.ErrorPrevention = *p.ErrorPrevention
	}
	if p.InteractiveChecks != nil {
		out.InteractiveChecks = *p.InteractiveChecks
	}
	if p.DebugMode != nil {
		out.DebugMode = *p.DebugMode
	}
	out.Credential = NormalizeCredential(out.Credential)
	return out
}

// Patch returns a patch that sets every field to the value in s.
func (s Settings) Patch() SettingsPatch {
	credential := s.Credential
	f := s.Flags
	return SettingsPatch{
		Credential:          &credential,
		SocraticQuestioning: &f.SocraticQuestioning,
		ErrorPrevention:     &f.ErrorPrevention,
		InteractiveChecks:   &f.InteractiveChecks,
		DebugMode:           &f.DebugMode,
	}
}

// Record flattens the patch into store key/value pairs.
// A cleared credential is returned in deleted rather than stored as "".
func (p SettingsPatch) Record() (set map[string]string, deleted []string) {
	set = make(map[string]string)
	if p.Credential != nil {
		if c := NormalizeCredential(*p.Credential); c != "" {
			set[KeyCredential] = c
		} else {
			deleted = append(deleted, KeyCredential)
		}
	}
	putBool := func(key string, v *bool) {
		if v != nil {
			set[key] = strconv.FormatBool(*v)
		}
	}
	putBool(KeySocraticQuestioning, p.SocraticQuestioning)
	putBool(KeyErrorPrevention, p.ErrorPrevention)
	putBool(KeyInteractiveChecks, p.InteractiveChecks)
	putBool(KeyDebugMode, p.DebugMode)
	return set, deleted
}

// SettingsFromRecord overlays stored values onto defaults.
// Unparseable booleans keep the default.
func SettingsFromRecord(defaults Settings, record map[string]string) Settings {
	out := defaults
	if c, ok := record[KeyCredential]; ok {
		if c = NormalizeCredential(c); c != "" {
			out.Credential = c
		}
	}
	readBool := func(key string, dst *bool) {
		if raw, ok := record[key]; ok {
			if v, err := strconv.ParseBool(raw); err == nil {
				*dst = v
			}
		}
	}
	readBool(KeySocraticQuestioning, &out.SocraticQuestioning)
	readBool(KeyErrorPrevention, &out.ErrorPrevention)
	readBool(KeyInteractiveChecks, &out.InteractiveChecks)
	readBool(KeyDebugMode, &out.DebugMode)
	out.Credential = NormalizeCredential(out.Credential)
	return out
}

// SettingsView is the redacted form returned to clients.
type SettingsView struct {
	CredentialConfigured bool `json:"credential_configured"`
	Flags
}

// View returns the redacted form of s.
func (s Settings) View() SettingsView {
	return SettingsView{CredentialConfigured: s.HasCredential(), Flags: s.Flags}
}
