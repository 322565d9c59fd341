package sim

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

type Op uint8

const (
	OpTransition Op = iota
	OpBeginPass
	OpEndPass
	OpSetViewport
	OpBindPipeline
	OpBindConstants
	OpBindDescriptorTable
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpDraw
	OpDrawIndexed
	OpDrawIndexedIndirect
)

var opNames = [...]string{
	"Transition", "BeginPass", "EndPass", "SetViewport", "BindPipeline",
	"BindConstants", "BindDescriptorTable", "BindVertexBuffer", "BindIndexBuffer",
	"Draw", "DrawIndexed", "DrawIndexedIndirect",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Command is one recorded command. The meaning of Args depends on Op:
//
//	Transition          from, to
//	BeginPass           clear, width, height, hasDepth
//	BindPipeline        kind
//	BindConstants       offset, size
//	BindDescriptorTable table
//	DrawIndexed         indexCount, firstIndex, vertexOffset, firstInstance
//	Draw                vertexCount, firstVertex
//	DrawIndexedIndirect offset, drawCount, stride
type Command struct {
	Op   Op
	Args [4]int64
	// Indirect holds the argument entries read at record time.
	Indirect []metadata.DrawIndexedIndirectArgs
}

// Count returns how many commands of op the list holds.
func (e ExecutedList) Count(op Op) int {
	n := 0
	for _, c := range e.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// DrawCount returns the number of draws the list issues, counting each
// indirect entry.
func (e ExecutedList) DrawCount() int {
	n := 0
	for _, c := range e.Commands {
		switch c.Op {
		case OpDraw, OpDrawIndexed:
			n++
		case OpDrawIndexedIndirect:
			n += int(c.Args[1])
		}
	}
	return n
}

type CommandContext struct {
	resource
}

func (d *Device) NewCommandContext() (gpu.CommandContext, error) {
	return &CommandContext{resource: d.newResource("command context", "ctx")}, nil
}

func (c *CommandContext) Reset() error {
	c.dev.mutex.Lock()
	defer c.dev.mutex.Unlock()
	if c.busy > 0 {
		c.dev.hazard("command context reset while %d lists recorded from it are pending", c.busy)
	}
	return nil
}

func (c *CommandContext) Begin(label string) (gpu.Recorder, error) {
	l := &CommandList{label: label, seen: map[*resource]struct{}{}}
	l.ref(&c.resource)
	return &Recorder{list: l}, nil
}

func (c *CommandContext) Destroy() { c.destroy() }

type CommandList struct {
	label    string
	commands []Command
	refs     []*resource
	seen     map[*resource]struct{}
	closed   bool
}

func (l *CommandList) Label() string { return l.label }

// Commands returns the recorded commands.
func (l *CommandList) Commands() []Command { return l.commands }

func (l *CommandList) ref(r *resource) {
	if _, ok := l.seen[r]; ok {
		return
	}
	l.seen[r] = struct{}{}
	l.refs = append(l.refs, r)
}

type Recorder struct {
	list   *CommandList
	inPass bool
	err    error
}

func (r *Recorder) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = errors.Newf("%s: "+format, append([]interface{}{r.list.label}, args...)...)
	}
}

func (r *Recorder) emit(op Op, args ...int64) {
	c := Command{Op: op}
	copy(c.Args[:], args)
	r.list.commands = append(r.list.commands, c)
}

func (r *Recorder) refTarget(t gpu.RenderTarget) {
	switch rt := t.(type) {
	case *RenderTarget:
		r.list.ref(&rt.resource)
	case *DepthTarget:
		r.list.ref(&rt.resource)
	case nil:
	default:
		r.fail("foreign render target %T", t)
	}
}

func (r *Recorder) refBuffer(b gpu.Buffer) {
	switch buf := b.(type) {
	case *UploadBuffer:
		r.list.ref(&buf.resource)
	case *Buffer:
		r.list.ref(&buf.resource)
	default:
		r.fail("foreign buffer %T", b)
	}
}

func (r *Recorder) Transition(target gpu.RenderTarget, from gpu.ResourceState, to gpu.ResourceState) {
	if r.inPass {
		r.fail("transition inside a render pass")
	}
	r.refTarget(target)
	r.emit(OpTransition, int64(from), int64(to))
}

func (r *Recorder) BeginPass(pass gpu.PassDesc) {
	if r.inPass {
		r.fail("nested render pass")
	}
	r.inPass = true
	r.refTarget(pass.Color)
	hasDepth := int64(0)
	if pass.Depth != nil {
		r.refTarget(pass.Depth)
		hasDepth = 1
	}
	clear := int64(0)
	if pass.Clear {
		clear = 1
	}
	w, h := pass.Color.Extent()
	r.emit(OpBeginPass, clear, int64(w), int64(h), hasDepth)
}

func (r *Recorder) EndPass() {
	if !r.inPass {
		r.fail("EndPass without BeginPass")
	}
	r.inPass = false
	r.emit(OpEndPass)
}

func (r *Recorder) SetViewport(width float32, height float32) {
	r.emit(OpSetViewport, int64(width), int64(height))
}

func (r *Recorder) BindPipeline(p gpu.Pipeline) {
	pl, ok := p.(*Pipeline)
	if !ok {
		r.fail("foreign pipeline %T", p)
		return
	}
	r.list.ref(&pl.resource)
	r.emit(OpBindPipeline, int64(pl.kind))
}

func (r *Recorder) BindConstants(br gpu.BufferRange) {
	r.refBuffer(br.Buffer)
	if br.Offset+br.Size > br.Buffer.Size() {
		r.fail("constants [%d,+%d) outside buffer of %d bytes", br.Offset, br.Size, br.Buffer.Size())
	}
	r.emit(OpBindConstants, int64(br.Offset), int64(br.Size))
}

func (r *Recorder) BindDescriptorTable(heap gpu.DescriptorHeap, table uint32) {
	h, ok := heap.(*DescriptorHeap)
	if !ok {
		r.fail("foreign descriptor heap %T", heap)
		return
	}
	if table >= uint32(len(h.tables)) {
		r.fail("descriptor table %d out of range", table)
		return
	}
	r.list.ref(&h.tables[table].resource)
	r.emit(OpBindDescriptorTable, int64(table))
}

func (r *Recorder) BindVertexBuffer(br gpu.BufferRange, stride uint32) {
	r.refBuffer(br.Buffer)
	r.emit(OpBindVertexBuffer, int64(br.Offset), int64(br.Size), int64(stride))
}

func (r *Recorder) BindIndexBuffer(br gpu.BufferRange) {
	r.refBuffer(br.Buffer)
	r.emit(OpBindIndexBuffer, int64(br.Offset), int64(br.Size))
}

func (r *Recorder) Draw(vertexCount uint32, firstVertex uint32) {
	if !r.inPass {
		r.fail("draw outside a render pass")
	}
	r.emit(OpDraw, int64(vertexCount), int64(firstVertex))
}

func (r *Recorder) DrawIndexed(indexCount uint32, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if !r.inPass {
		r.fail("draw outside a render pass")
	}
	r.emit(OpDrawIndexed, int64(indexCount), int64(firstIndex), int64(vertexOffset), int64(firstInstance))
}

func (r *Recorder) DrawIndexedIndirect(args gpu.BufferRange, drawCount uint32, stride uint32) {
	if !r.inPass {
		r.fail("draw outside a render pass")
	}
	r.refBuffer(args.Buffer)
	c := Command{Op: OpDrawIndexedIndirect}
	c.Args[0], c.Args[1], c.Args[2] = int64(args.Offset), int64(drawCount), int64(stride)
	if ub, ok := args.Buffer.(*UploadBuffer); ok && stride > 0 {
		end := args.Offset + uint64(drawCount-1)*uint64(stride) + uint64(unsafe.Sizeof(metadata.DrawIndexedIndirectArgs{}))
		if drawCount > 0 && end > uint64(len(ub.data)) {
			r.fail("indirect arguments past the end of the buffer")
		} else {
			c.Indirect = make([]metadata.DrawIndexedIndirectArgs, drawCount)
			for i := range c.Indirect {
				off := args.Offset + uint64(i)*uint64(stride)
				c.Indirect[i] = *(*metadata.DrawIndexedIndirectArgs)(unsafe.Pointer(&ub.data[off]))
			}
		}
	}
	r.list.commands = append(r.list.commands, c)
}

func (r *Recorder) Close() (gpu.CommandList, error) {
	if r.inPass {
		r.fail("closed inside a render pass")
	}
	if r.err != nil {
		return nil, r.err
	}
	r.list.closed = true
	r.list.seen = nil
	return r.list, nil
}
