package wsurl

import "strings"

// normalizePath returns a rooted, slash-collapsed path with "." and ".."
// segments resolved. ".." never climbs above the root. The query string,
// if any, is kept verbatim. A trailing slash is kept because shard paths
// are opaque to the client and the server may distinguish them.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}

	path, query, hasQuery := strings.Cut(p, "?")

	trailing := len(path) > 1 && strings.HasSuffix(path, "/")

	segments := strings.Split(path, "/")
	result := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(result) > 0 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, seg)
		}
	}

	out := "/" + strings.Join(result, "/")
	if trailing && out != "/" {
		out += "/"
	}
	if hasQuery {
		out += "?" + query
	}
	return out
}
