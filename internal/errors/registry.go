package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Resolution Errors (E100-E109)
	// ============================================

	"E100": {
		Category: CategoryResolve,
		Message:  "Host resolution failed",
		Detail:   "No address family in the preference order yielded an address for the host.",
	},
	"E101": {
		Category: CategoryResolve,
		Message:  "Invalid address family",
		Detail:   "Address families are ipv4 and ipv6, each listed at most once.",
	},

	// ============================================
	// Listener Errors (E110-E119)
	// ============================================

	"E110": {
		Category: CategoryNetwork,
		Message:  "Cannot bind listening socket",
		Detail:   "The resolved address could not be bound or put into listening mode.",
	},
	"E111": {
		Category: CategoryNetwork,
		Message:  "Listening socket failed",
		Detail:   "Accepting a connection failed and the server stopped accepting. Connections already being served were drained.",
	},
	"E112": {
		Category: CategoryNetwork,
		Message:  "Address already in use",
		Detail:   "Another process is listening on the configured host and port.",
	},
	"E113": {
		Category: CategoryNetwork,
		Message:  "Permission denied",
		Detail:   "Binding ports below 1024 usually needs elevated privileges.",
	},

	// ============================================
	// Configuration Errors (E120-E139)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid getserve.json",
		Detail:   "The getserve.json configuration file is malformed.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid port number",
		Detail:   "Ports must be between 0 and 65535.",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Invalid capacity",
		Detail:   "Capacity and backlog must be at least 1.",
	},
	"E124": {
		Category: CategoryStorage,
		Message:  "Serving root not found",
		Detail:   "The directory to serve files from does not exist or is not a directory.",
	},
	"E125": {
		Category: CategoryConfig,
		Message:  "Invalid S3 configuration",
		Detail:   "Serving from S3 needs a bucket and a region.",
	},
	"E126": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations use Go syntax such as \"30s\" or \"1m30s\".",
	},

	// ============================================
	// Client Errors (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryCLI,
		Message:  "Connection failed",
		Detail:   "The server could not be reached at the resolved address.",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "No getserve.json found",
		Detail:   "The directory does not contain a getserve.json file.",
	},
	"E142": {
		Category: CategoryProtocol,
		Message:  "Request failed",
		Detail:   "The connection broke or the server sent a malformed response.",
	},
	"E143": {
		Category: CategoryProtocol,
		Message:  "File not found",
		Detail:   "The server answered 404 for the requested path.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
