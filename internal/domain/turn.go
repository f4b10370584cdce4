// Package domain contains core domain types for tutorlens.
package domain

// Turn is the transient state of one intercepted tutoring request.
type Turn struct {
	StudentMessage string `json:"student_message"`
	Guidance       string `json:"guidance,omitempty"`
	Fallback       bool   `json:"fallback,omitempty"`
}

// InjectorConfig is the configuration payload carried by INIT_INJECTOR.
type InjectorConfig struct {
	LLMEndpoint          string `json:"llm_endpoint"`
	TargetPath           string `json:"target_path"`
	SystemPrompt         string `json:"system_prompt"`
	SpliceMode           string `json:"splice_mode"`
	DefaultFlags         Flags  `json:"default_flags"`
	CredentialConfigured bool   `json:"credential_configured"`
}
