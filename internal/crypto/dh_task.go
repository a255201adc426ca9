package crypto

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// DHTask is one outstanding Diffie-Hellman computation, owned by exactly
// one side at a time: the event loop owns it while it's queued or once its
// result has been collected, a worker owns it while computing. Ownership
// never overlaps, mirroring crypt_dh.c's pcrc_serialno single-owner
// discipline — there is no shared mutable state a reader and a writer
// could race on.
type DHTask struct {
	Group      DHGroup
	PeerPublic []byte

	// Fields below this point are set exactly once, by exactly one
	// goroutine, before being handed to the next owner over a channel.
	// They are never read concurrently with that write.
	private []byte
	public  []byte
	secret  []byte
	err     error

	done chan struct{}
}

// newDHTask allocates a task in the "submitted, not yet executed" state.
func newDHTask(group DHGroup, peerPublic []byte) *DHTask {
	return &DHTask{
		Group:      group,
		PeerPublic: peerPublic,
		done:       make(chan struct{}),
	}
}

// Pipeline runs DH computations on a fixed worker pool, handing each task's
// result back on a single channel the event loop selects on alongside its
// network and timer cases (orig: crypt_dh.c's helper-thread dispatch). It
// never blocks Submit on worker availability: tasks queue.
type Pipeline struct {
	tasks   chan *DHTask
	results chan *DHTask

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPipeline starts workers DH worker goroutines draining a shared task
// queue, the same fan-out crypt_dh.c's helper threads perform.
func NewPipeline(ctx context.Context, workers int) *Pipeline {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		tasks:   make(chan *DHTask, 64),
		results: make(chan *DHTask, 64),
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	return p
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(task)

			select {
			case p.results <- task:
			case <-ctx.Done():
				return
			}
		}
	}
}

// execute runs the actual exponentiation — the only step that is
// expensive enough to warrant a worker. Generation of the local keypair
// happens here too, since for MODP groups it's the same order of cost as
// the shared-secret computation.
func (p *Pipeline) execute(task *DHTask) {
	private, public, err := task.Group.GeneratePrivate()
	if err != nil {
		task.err = errors.Wrap(err, "crypto: dh task: generate private")
		close(task.done)
		return
	}

	secret, err := task.Group.SharedSecret(private, task.PeerPublic)
	if err != nil {
		clear(private)
		task.err = errors.Wrap(err, "crypto: dh task: compute shared secret")
		close(task.done)
		return
	}

	task.private = private
	task.public = public
	task.secret = secret
	close(task.done)
}

// Submit enqueues a new DH computation against peerPublic and returns the
// task handle; the event loop must read it back off Results (or Cancel it)
// eventually or the worker that produced it leaks its result slot.
func (p *Pipeline) Submit(group DHGroup, peerPublic []byte) *DHTask {
	task := newDHTask(group, peerPublic)
	p.tasks <- task
	return task
}

// Results is the channel the event loop selects on to learn a submitted
// task has finished.
func (p *Pipeline) Results() <-chan *DHTask { return p.results }

// Complete transfers ownership of the task's computed values to the
// caller: the public value to put on the wire and the shared secret to
// feed the key-derivation ladder. It may be called exactly once per task;
// a second call returns an error rather than handing out the same secret
// slice twice, since the first caller may have already zeroed it.
func (t *DHTask) Complete() (public, secret []byte, err error) {
	select {
	case <-t.done:
	default:
		return nil, nil, errors.New("crypto: dh task: not yet complete")
	}
	if t.err != nil {
		return nil, nil, t.err
	}
	if t.secret == nil {
		return nil, nil, errors.New("crypto: dh task: result already taken")
	}

	public, secret = t.public, t.secret
	clear(t.private)
	t.public, t.secret, t.private = nil, nil, nil
	return public, secret, nil
}

// Cancel marks a task's result as already consumed without reading it,
// for the case where the exchange it belonged to died before the worker
// finished — the event loop drops the result on the floor the next time it
// arrives on Results instead of blocking on Complete.
func (t *DHTask) Cancel() {
	<-t.done
	clear(t.private)
	clear(t.secret)
	t.public, t.secret, t.private = nil, nil, nil
}

// Close stops all workers and releases pipeline resources. Outstanding
// tasks already queued are abandoned; Results stops being serviced.
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}
