package crawl

import "golang.org/x/net/html"

// scopeStack tracks the chain of nodes currently in scope. The front element
// is the innermost scope. Mutation follows strict push/pop pairing, with
// pushBack as the single documented exception: it appends a node at the far
// end so it survives the unwind of every inner scope.
type scopeStack struct {
	nodes []*html.Node
}

func (s *scopeStack) pushFront(n *html.Node) {
	s.nodes = append([]*html.Node{n}, s.nodes...)
}

// popFront removes and returns the innermost scope. Calling it on an empty
// stack means an enter/exit pairing was broken somewhere, which is a defect
// in the executor, not a recoverable condition.
func (s *scopeStack) popFront() *html.Node {
	if len(s.nodes) == 0 {
		panic("crawl: popFront on empty scope stack")
	}
	n := s.nodes[0]
	s.nodes = s.nodes[1:]
	return n
}

func (s *scopeStack) pushBack(n *html.Node) {
	s.nodes = append(s.nodes, n)
}

func (s *scopeStack) front() *html.Node {
	if len(s.nodes) == 0 {
		panic("crawl: front on empty scope stack")
	}
	return s.nodes[0]
}

func (s *scopeStack) depth() int {
	return len(s.nodes)
}
