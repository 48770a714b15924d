package pipeline

// Pool recycles workspaces. It retains at most its capacity; extra
// workspaces handed back are dropped, and Get allocates when the pool is
// empty, so a loader expanding past the capacity never blocks.
type Pool struct {
	free chan *Workspace
}

// NewPool preallocates size workspaces.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{free: make(chan *Workspace, size)}
	for i := 0; i < size; i++ {
		p.free <- &Workspace{}
	}
	return p
}

// Get returns an empty workspace.
func (p *Pool) Get() *Workspace {
	select {
	case ws := <-p.free:
		return ws
	default:
		return &Workspace{}
	}
}

// Put resets ws and returns it to the pool.
func (p *Pool) Put(ws *Workspace) {
	if ws == nil {
		return
	}
	ws.Reset()
	select {
	case p.free <- ws:
	default:
	}
}

// Available returns the number of idle workspaces.
func (p *Pool) Available() int {
	return len(p.free)
}
