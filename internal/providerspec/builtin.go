package providerspec

var builtinSpecs = map[string]Spec{
	"google": {
		Key:     "google",
		Aliases: []string{"gemini", "rest", "google_ai_studio"},
		API: &APISpec{
			Protocol:       ProtocolGoogleGenerateContent,
			DefaultBaseURL: "https://generativelanguage.googleapis.com",
			DefaultPath:    "/v1beta/models/{model}:generateContent",
			APIKeyEnvs:     []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
			BaseURLEnv:     "GEMINI_BASE_URL",
		},
	},
	"google-sdk": {
		Key:     "google-sdk",
		Aliases: []string{"sdk", "genai"},
		API: &APISpec{
			Protocol:       ProtocolGoogleGenAISDK,
			DefaultBaseURL: "https://generativelanguage.googleapis.com",
			APIKeyEnvs:     []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
			BaseURLEnv:     "GEMINI_BASE_URL",
		},
	},
}

func Builtin(key string) (Spec, bool) {
	s, ok := builtinSpecs[CanonicalProviderKey(key)]
	if !ok {
		return Spec{}, false
	}
	return cloneSpec(s), true
}

func Builtins() map[string]Spec {
	out := make(map[string]Spec, len(builtinSpecs))
	for key, spec := range builtinSpecs {
		out[key] = cloneSpec(spec)
	}
	return out
}

func cloneSpec(in Spec) Spec {
	out := in
	if in.API != nil {
		api := *in.API
		api.APIKeyEnvs = append([]string{}, in.API.APIKeyEnvs...)
		out.API = &api
	}
	out.Aliases = append([]string{}, in.Aliases...)
	return out
}
