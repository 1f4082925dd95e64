// Package nanotec is the low-level RS-485 wire driver for the Nanotec
// stepper motors: framing, checksums, and a request/response pipeline
// that serializes a command, registers the expected reply, blocks on
// it, and discards the reply content once checked. This layer is
// treated as available as a library; this package is this repo's
// concrete instance of that assumption.
//
// Grounded on protocol/transport_host.go's send -> wait-for-ack ->
// dispatch-by-channel idiom and host/serial/serial_native.go's
// github.com/tarm/serial port wrapping.
package nanotec

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// PortConfig configures the RS-485 serial connection.
type PortConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// Driver owns the serial port and the per-motor reply routing. Only
// one goroutine (the Motors executor thread) is expected to call the
// request/response methods; EStop() is safe to call concurrently from
// a dedicated worker since it writes directly to the port rather than
// going through the command/reply pairing used by everything else —
// this is what lets an abort preempt any pending traffic.
type Driver struct {
	port io.ReadWriteCloser

	writeMu sync.Mutex

	repliesMu sync.Mutex
	replies   map[uint8]chan frame // address -> pending reply channel

	autoStatusMu sync.Mutex
	autoStatus   map[uint8]chan AutoStatus // address -> pending auto-status wait

	stop chan struct{}
	done chan struct{}
}

// Open opens the serial port and starts the background reader.
func Open(cfg PortConfig) (*Driver, error) {
	sc := &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.Timeout,
	}
	port, err := serial.OpenPort(sc)
	if err != nil {
		return nil, fmt.Errorf("nanotec: open %s: %w", cfg.Port, err)
	}

	d := &Driver{
		port:       port,
		replies:    make(map[uint8]chan frame),
		autoStatus: make(map[uint8]chan AutoStatus),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

// Close stops the reader and closes the port.
func (d *Driver) Close() error {
	close(d.stop)
	<-d.done
	return d.port.Close()
}

// send writes a frame and blocks for the single reply addressed to the
// same motor, following transport_host.go's send -> response-handle ->
// wait pattern. The response payload is returned unparsed; callers
// that only care that the command was acknowledged ignore it.
func (d *Driver) send(addr uint8, cmd uint16, payload []byte, timeout time.Duration) ([]byte, error) {
	reply := make(chan frame, 1)
	d.repliesMu.Lock()
	d.replies[addr] = reply
	d.repliesMu.Unlock()
	defer func() {
		d.repliesMu.Lock()
		delete(d.replies, addr)
		d.repliesMu.Unlock()
	}()

	raw, err := encode(frame{Address: addr, Command: cmd, Payload: payload})
	if err != nil {
		return nil, &DriverError{Address: addr, Err: err}
	}

	d.writeMu.Lock()
	_, werr := d.port.Write(raw)
	d.writeMu.Unlock()
	if werr != nil {
		return nil, &DriverError{Address: addr, Err: werr}
	}

	select {
	case r := <-reply:
		return r.Payload, nil
	case <-time.After(timeout):
		return nil, &DriverError{Address: addr, Err: fmt.Errorf("timed out waiting for reply")}
	case <-d.stop:
		return nil, &DriverError{Address: addr, Err: fmt.Errorf("driver closed")}
	}
}

// defaultTimeout bounds every ordinary command/reply round trip; it is
// deliberately short since RS-485 round trips to a local bus are
// sub-millisecond in practice and a stuck motor should fail fast
// rather than stall the executor.
const defaultTimeout = 1 * time.Second

// WaitAutoStatus blocks until the addressed motor reports completion,
// or timeout elapses. It is the "wait for auto-status" half of every
// motion command.
func (d *Driver) WaitAutoStatus(addr uint8, timeout time.Duration) (AutoStatus, error) {
	ch := make(chan AutoStatus, 1)
	d.autoStatusMu.Lock()
	d.autoStatus[addr] = ch
	d.autoStatusMu.Unlock()
	defer func() {
		d.autoStatusMu.Lock()
		delete(d.autoStatus, addr)
		d.autoStatusMu.Unlock()
	}()

	select {
	case s := <-ch:
		return s, nil
	case <-time.After(timeout):
		return AutoStatus{}, &DriverError{Address: addr, Err: fmt.Errorf("timed out waiting for auto-status")}
	case <-d.stop:
		return AutoStatus{}, &DriverError{Address: addr, Err: fmt.Errorf("driver closed")}
	}
}

// readLoop continuously reads frames and routes them: auto-status
// frames go to any waiter registered for that address, everything else
// is treated as the reply to the most recent command sent to that
// address.
func (d *Driver) readLoop() {
	defer close(d.done)

	var buf bytes.Buffer
	chunk := make([]byte, 256)

	for {
		select {
		case <-d.stop:
			return
		default:
		}

		n, err := d.port.Read(chunk)
		if err != nil {
			if err == io.EOF {
				return
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		buf.Write(chunk[:n])

		data := buf.Bytes()
		consumedTotal := 0
		for {
			f, consumed, ok := decode(data[consumedTotal:])
			if consumed == 0 {
				break
			}
			consumedTotal += consumed
			if !ok {
				continue
			}
			d.dispatch(f)
		}
		remaining := append([]byte(nil), data[consumedTotal:]...)
		buf.Reset()
		buf.Write(remaining)
	}
}

func (d *Driver) dispatch(f frame) {
	if f.Command == cmdAutoStatus {
		code := StatusReady
		if len(f.Payload) > 0 && f.Payload[0] != 0 {
			code = StatusPosError
		}
		d.autoStatusMu.Lock()
		ch, ok := d.autoStatus[f.Address]
		d.autoStatusMu.Unlock()
		if ok {
			select {
			case ch <- AutoStatus{Address: f.Address, Code: code}:
			default:
			}
		}
		return
	}

	d.repliesMu.Lock()
	ch, ok := d.replies[f.Address]
	d.repliesMu.Unlock()
	if ok {
		select {
		case ch <- f:
		default:
		}
	}
}

// EStop sends an immediate stop to every motor, bypassing the normal
// command/reply queue entirely (no reply is awaited — the bus is about
// to go quiet as motors ramp down on their quick-stop ramps). overtravel
// bounds the worst-case time the caller should wait before considering
// the stop complete; it is not enforced here, only passed through for
// callers that want to time their own wait.
func (d *Driver) EStop(overtravel time.Duration) error {
	raw, err := encode(frame{Address: Broadcast, Command: cmdEstop})
	if err != nil {
		return err
	}
	d.writeMu.Lock()
	_, werr := d.port.Write(raw)
	d.writeMu.Unlock()
	if werr != nil {
		return &DriverError{Address: Broadcast, Err: werr}
	}
	return nil
}
