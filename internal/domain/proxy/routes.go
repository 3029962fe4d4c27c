package proxy

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
)

// Route names one of the fixed upstream destinations.
type Route string

const (
	RouteChat   Route = "chat"
	RouteImages Route = "images"
)

// Contract reports whether a parsed request body has the shape a route accepts.
type Contract func(root ast.Node) bool

// Destination binds a route to its upstream path and body contract.
type Destination struct {
	Route    Route
	Path     string
	Label    string
	Contract Contract
}

// Destinations is the route table of the gateway.
var Destinations = map[Route]Destination{
	RouteChat: {
		Route:    RouteChat,
		Path:     "/chat/completions",
		Label:    "Chat completions",
		Contract: ChatContract,
	},
	RouteImages: {
		Route:    RouteImages,
		Path:     "/images/generations",
		Label:    "Image generation",
		Contract: ImageContract,
	},
}

// Lookup returns the destination of route.
func Lookup(route Route) (Destination, error) {
	dest, ok := Destinations[route]
	if !ok {
		return Destination{}, fmt.Errorf("unknown proxy route %q", route)
	}
	return dest, nil
}

// ChatContract accepts {messages: [{role: string, content: string}, ...]}.
func ChatContract(root ast.Node) bool {
	if root.Type() != ast.V_OBJECT {
		return false
	}
	messages := root.Get("messages")
	if kind(messages) != ast.V_ARRAY {
		return false
	}
	items, err := messages.ArrayUseNode()
	if err != nil {
		return false
	}
	for i := range items {
		item := &items[i]
		if kind(item) != ast.V_OBJECT {
			return false
		}
		if kind(item.Get("role")) != ast.V_STRING || kind(item.Get("content")) != ast.V_STRING {
			return false
		}
	}
	return true
}

// ImageContract accepts {prompt: string, n?: number, size?: string}.
func ImageContract(root ast.Node) bool {
	if root.Type() != ast.V_OBJECT {
		return false
	}
	if kind(root.Get("prompt")) != ast.V_STRING {
		return false
	}
	if !optional(root.Get("n"), ast.V_NUMBER) {
		return false
	}
	return optional(root.Get("size"), ast.V_STRING)
}

// optional accepts an absent field or one of type want. An explicit null is not absent.
func optional(node *ast.Node, want int) bool {
	t := kind(node)
	return t == ast.V_NONE || t == want
}

// kind returns the node type, with V_NONE for a missing key. Get yields a nil
// node for absent keys, so Type must not be called on it directly.
func kind(node *ast.Node) int {
	if node == nil || !node.Exists() {
		return ast.V_NONE
	}
	return node.Type()
}

// Check parses body and applies the contract of dest.
func (d Destination) Check(body []byte) bool {
	if len(body) == 0 || !sonic.Valid(body) {
		return false
	}
	root, err := sonic.Get(body)
	if err != nil {
		return false
	}
	return d.Contract(root)
}
