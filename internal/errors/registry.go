package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Config errors (E100-E119)

	"E100": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "chatdctl reads the user, chats and shard servers from chatd.json.",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Config file could not be read or written",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "The config file could not be parsed as JSON.",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Missing user id",
		Detail:   "Every command is sent on behalf of a user. Set \"user\" to the user's base64url id.",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid id",
		Detail:   "Ids are 8 bytes encoded as unpadded base64url, 11 characters long.",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Invalid shard",
		Detail:   "A shard needs a non-negative number and a websocket URL.",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Invalid chat",
		Detail:   "A chat must name a configured shard and appear only once.",
	},
	"E107": {
		Category: CategoryConfig,
		Message:  "Invalid client settings",
	},

	// Protocol errors (E120-E129)

	"E120": {
		Category: CategoryProtocol,
		Message:  "Frame does not decode",
		Detail:   "The frame holds a truncated command or an unknown opcode.",
	},
	"E121": {
		Category: CategoryProtocol,
		Message:  "Frame encoding not recognised",
		Detail:   "Frames are given as hex or base64.",
	},

	// Connection errors (E130-E139)

	"E130": {
		Category: CategoryConnection,
		Message:  "Shard connection failed",
	},
	"E131": {
		Category: CategoryConnection,
		Message:  "Metrics server failed",
	},

	// CLI errors (E140-E149)

	"E140": {
		Category: CategoryCLI,
		Message:  "Invalid argument",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
