// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacnet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Engine is the service façade: it owns the socket pair, the invoke-ID
// dispatcher, and the receiver loops, and exposes discovery and read
// operations as plain blocking calls. Callers never touch the wire codec,
// the dispatcher, or a socket directly.
type Engine struct {
	opts       *engineOptions
	sockets    *socketPair
	dispatcher *dispatcher
	recv       *receiver
	metrics    *Metrics
	logger     *slog.Logger

	group    *errgroup.Group
	cancel   context.CancelFunc

	devicesMu sync.RWMutex
	devices   map[uint32]DiscoveredDevice

	pollMu   sync.Mutex
	pollStop context.CancelFunc
	pollDone chan struct{}
	points   map[uint32]*polledDevice
}

// Start opens both sockets, launches the receiver loops, and returns a
// ready Engine. The returned Engine must be closed with Shutdown.
func Start(ctx context.Context, opts ...EngineOption) (*Engine, error) {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(o)
	}

	sockets, err := openSockets(o.port)
	if err != nil {
		return nil, err
	}

	metrics := o.metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	d := newDispatcher()
	recv := newReceiver(sockets, d, metrics, o.logger)

	runCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(runCtx)

	e := &Engine{
		opts:       o,
		sockets:    sockets,
		dispatcher: d,
		recv:       recv,
		metrics:    metrics,
		logger:     o.logger,
		group:      group,
		cancel:     cancel,
		devices:    make(map[uint32]DiscoveredDevice),
		points:     make(map[uint32]*polledDevice),
	}
	recv.onDevice = e.recordDevice

	group.Go(func() error { return recv.Run(gctx, sockets.discovery) })
	group.Go(func() error { return recv.Run(gctx, sockets.client) })

	return e, nil
}

func (e *Engine) recordDevice(dev DiscoveredDevice) {
	dev.LastSeen = time.Now()
	e.devicesMu.Lock()
	_, existed := e.devices[dev.DeviceID]
	e.devices[dev.DeviceID] = dev
	e.devicesMu.Unlock()
	if !existed {
		e.metrics.DevicesDiscovered.Inc()
	}
}

// Device returns the most recently observed I-Am record for deviceID.
func (e *Engine) Device(deviceID uint32) (DiscoveredDevice, bool) {
	e.devicesMu.RLock()
	defer e.devicesMu.RUnlock()
	dev, ok := e.devices[deviceID]
	return dev, ok
}

// Metrics returns the engine's Prometheus metrics, for wiring into an
// HTTP handler.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Discover broadcasts a Who-Is and streams every I-Am observed for window
// (or the engine's configured discovery window if window is 0) on the
// returned channel. The channel is closed when the window elapses or ctx
// is cancelled, whichever comes first.
func (e *Engine) Discover(ctx context.Context, window time.Duration) (<-chan DiscoveredDevice, error) {
	if window <= 0 {
		window = e.opts.discoveryWindow
	}

	ch := e.recv.Subscribe()

	if err := e.sendUnconfirmed(ctx, broadcastAddr(e.opts.iface, e.opts.port), ServiceWhoIs, EncodeWhoIs(nil, nil)); err != nil {
		e.recv.Unsubscribe(ch)
		return nil, err
	}
	e.metrics.WhoIsSent.Inc()

	go func() {
		timer := time.NewTimer(window)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		e.recv.Unsubscribe(ch)
	}()

	return ch, nil
}

func (e *Engine) sendUnconfirmed(ctx context.Context, addr *net.UDPAddr, service UnconfirmedServiceChoice, data []byte) error {
	apdu := EncodeUnconfirmedRequest(service, data)
	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	bvlc := EncodeBVLC(BVLCOriginalBroadcastNPDU, len(npdu)+len(apdu))

	packet := make([]byte, 0, len(bvlc)+len(npdu)+len(apdu))
	packet = append(packet, bvlc...)
	packet = append(packet, npdu...)
	packet = append(packet, apdu...)

	if _, err := e.sockets.discovery.WriteToUDP(packet, addr); err != nil {
		return fmt.Errorf("bacnet: send unconfirmed request: %w", err)
	}
	e.metrics.BytesSent.Add(float64(len(packet)))
	return nil
}

// sendConfirmed sends a confirmed service request to peer and blocks for
// its reply (SimpleAck/ComplexAck decoded to *APDU, or an error for
// Error/Reject/Abort/timeout/cancellation).
func (e *Engine) sendConfirmed(ctx context.Context, peer *net.UDPAddr, service ConfirmedServiceChoice, data []byte) (*APDU, error) {
	deadline := time.Now().Add(e.opts.requestTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	invokeID, reply, err := e.dispatcher.Allocate(peer, deadline)
	if err != nil {
		e.metrics.RequestsFailed.Inc()
		return nil, err
	}

	// Max-APDU code 5 advertises MaxAPDULength (1476 octets); the
	// segmented-response-accepted flag (0x02) reflects the configured
	// segmentation support.
	apdu := EncodeConfirmedRequest(invokeID, service, data, 0, 5)
	if e.opts.segmentation == SegmentationBoth || e.opts.segmentation == SegmentationReceive {
		apdu[0] |= 0x02
	}
	npdu := EncodeNPDU(true, NPDUControlPriorityNormal)
	bvlc := EncodeBVLC(BVLCOriginalUnicastNPDU, len(npdu)+len(apdu))

	packet := make([]byte, 0, len(bvlc)+len(npdu)+len(apdu))
	packet = append(packet, bvlc...)
	packet = append(packet, npdu...)
	packet = append(packet, apdu...)

	start := time.Now()
	e.metrics.RequestsSent.Inc()
	e.metrics.ActiveRequests.Inc()
	defer e.metrics.ActiveRequests.Dec()

	if _, err := e.sockets.client.WriteToUDP(packet, peer); err != nil {
		e.metrics.RequestsFailed.Inc()
		return nil, fmt.Errorf("bacnet: send confirmed request: %w", err)
	}
	e.metrics.BytesSent.Add(float64(len(packet)))

	select {
	case <-ctx.Done():
		e.metrics.RequestsFailed.Inc()
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())

	case result := <-reply:
		e.metrics.RequestLatency.Observe(time.Since(start).Seconds())
		if result.err != nil {
			if IsTimeout(result.err) {
				e.metrics.RequestsTimedOut.Inc()
			}
			e.metrics.RequestsFailed.Inc()
			return nil, result.err
		}

		resp := result.apdu
		switch resp.Type {
		case PDUTypeSimpleAck, PDUTypeComplexAck:
			if resp.Segmented {
				e.logger.Warn("segmented reply: decoding first segment only, remaining segments are discarded",
					"peer", peer, "invoke_id", resp.InvokeID)
			}
			e.metrics.RequestsSucceeded.Inc()
			return resp, nil
		case PDUTypeError:
			e.metrics.ErrorsReceived.Inc()
			e.metrics.RequestsFailed.Inc()
			return nil, decodeBACnetError(resp.Data)
		case PDUTypeReject:
			e.metrics.RejectsReceived.Inc()
			e.metrics.RequestsFailed.Inc()
			return nil, &RejectError{InvokeID: resp.InvokeID, Reason: RejectReason(resp.Service)}
		case PDUTypeAbort:
			e.metrics.AbortsReceived.Inc()
			e.metrics.RequestsFailed.Inc()
			return nil, &AbortError{InvokeID: resp.InvokeID, Reason: AbortReason(resp.Service)}
		default:
			e.metrics.RequestsFailed.Inc()
			return nil, fmt.Errorf("%w: unexpected PDU type %02x", ErrInvalidResponse, resp.Type)
		}
	}
}

func decodeBACnetError(data []byte) error {
	if len(data) < 2 {
		return ErrInvalidResponse
	}
	_, _, length, headerLen, err := DecodeTagNumber(data)
	if err != nil {
		return ErrInvalidResponse
	}
	class := ErrorClass(DecodeUnsigned(data[headerLen : headerLen+length]))
	offset := headerLen + length

	_, _, length, headerLen, err = DecodeTagNumber(data[offset:])
	if err != nil {
		return ErrInvalidResponse
	}
	code := ErrorCode(DecodeUnsigned(data[offset+headerLen : offset+headerLen+length]))

	return NewBACnetError(class, code)
}

// ReadObjectList reads a device's object-list property in a single
// ReadPropertyMultiple exchange rather than one ReadProperty per array
// index.
func (e *Engine) ReadObjectList(ctx context.Context, peer *net.UDPAddr, deviceID uint32) ([]ObjectIdentifier, error) {
	device := NewObjectIdentifier(ObjectTypeDevice, deviceID)

	data := make([]byte, 0, 16)
	data = append(data, EncodeContextObjectIdentifier(0, device)...)
	data = append(data, EncodeOpeningTag(1)...)
	data = append(data, EncodeContextEnumerated(0, uint32(PropertyObjectList))...)
	data = append(data, EncodeClosingTag(1)...)

	resp, err := e.sendConfirmed(ctx, peer, ServiceReadPropertyMultiple, data)
	if err != nil {
		return nil, err
	}

	all, err := decodeObjectList(resp.Data)
	if err != nil {
		return nil, err
	}
	objects := filterNonDeviceObjects(all)

	e.TrackObjectList(peer, deviceID, objects)
	return objects, nil
}

// filterNonDeviceObjects drops the device's own Device object from its
// object-list: present-value has no meaning on it, and callers asking "what
// points does this device have" don't want it back.
func filterNonDeviceObjects(objects []ObjectIdentifier) []ObjectIdentifier {
	out := make([]ObjectIdentifier, 0, len(objects))
	for _, oid := range objects {
		if oid.Type != ObjectTypeDevice {
			out = append(out, oid)
		}
	}
	return out
}

// decodeObjectList parses a ReadPropertyMultiple response body containing a
// single object-list property: object-id[0], opening[1], property-id[2],
// opening[4], repeated application-tagged object identifiers, closing[4],
// closing[1]. It returns every object in the property as-is, including the
// device's own Device object; filtering that out is the caller's job.
func decodeObjectList(data []byte) ([]ObjectIdentifier, error) {
	offset := 0

	_, class, length, headerLen, err := DecodeTagNumber(data[offset:])
	if err != nil || class != TagClassContext {
		return nil, ErrInvalidResponse
	}
	offset += headerLen + length

	_, class, length, _, err = DecodeTagNumber(data[offset:])
	if err != nil || class != TagClassContext || length != -1 {
		return nil, ErrInvalidResponse
	}
	offset++

	tagNum, class, length, headerLen, err := DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 2 || class != TagClassContext {
		return nil, ErrInvalidResponse
	}
	offset += headerLen + length

	// Optional array index [3] absent when reading the whole array.
	if offset < len(data) {
		if tn, cl, ln, hl, e2 := DecodeTagNumber(data[offset:]); e2 == nil && tn == 3 && cl == TagClassContext {
			offset += hl + ln
		}
	}

	_, class, length, _, err = DecodeTagNumber(data[offset:])
	if err != nil || class != TagClassContext || length != -1 {
		return nil, ErrInvalidResponse
	}
	offset++

	var objects []ObjectIdentifier
	for offset < len(data) {
		tagNum, class, length, headerLen, err = DecodeTagNumber(data[offset:])
		if err != nil {
			return nil, ErrInvalidResponse
		}
		if length == -2 {
			offset += headerLen
			break
		}
		if class == TagClassApplication && ApplicationTag(tagNum) == TagObjectID && length == 4 {
			objects = append(objects, DecodeObjectIdentifierFromBytes(data[offset+headerLen:offset+headerLen+4]))
		}
		offset += headerLen + length
	}

	return objects, nil
}

// ReadPresentValue reads the present-value property of objectID on peer
// and renders it as a string; the rendering is type-directed (reals with
// two decimals, integers and enumerations in decimal, booleans as
// "active"/"inactive", strings as-is, an empty value as "N/A", an
// unrecognised application tag as "Tag 0xNN").
func (e *Engine) ReadPresentValue(ctx context.Context, peer *net.UDPAddr, objectID ObjectIdentifier) (string, error) {
	data := make([]byte, 0, 8)
	data = append(data, EncodeContextObjectIdentifier(0, objectID)...)
	data = append(data, EncodeContextEnumerated(1, uint32(PropertyPresentValue))...)

	resp, err := e.sendConfirmed(ctx, peer, ServiceReadProperty, data)
	if err != nil {
		return "", err
	}

	value, err := decodeReadPropertyResponse(resp.Data)
	if err != nil {
		return "", err
	}
	return formatPropertyValue(value), nil
}

// decodeReadPropertyResponse decodes a ReadProperty ComplexAck body:
// object-id[0], property-id[1], optional array-index[2], opening[3],
// value, closing[3].
func decodeReadPropertyResponse(data []byte) (interface{}, error) {
	if len(data) < 6 {
		return nil, ErrInvalidResponse
	}
	offset := 0

	_, class, length, headerLen, err := DecodeTagNumber(data[offset:])
	if err != nil || class != TagClassContext {
		return nil, ErrInvalidResponse
	}
	offset += headerLen + length

	tagNum, class, length, headerLen, err := DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 1 || class != TagClassContext {
		return nil, ErrInvalidResponse
	}
	offset += headerLen + length

	if offset < len(data) {
		if tn, cl, ln, hl, e2 := DecodeTagNumber(data[offset:]); e2 == nil && tn == 2 && cl == TagClassContext {
			offset += hl + ln
		}
	}

	if len(data) <= offset {
		return nil, ErrInvalidResponse
	}
	tagNum, class, length, _, err = DecodeTagNumber(data[offset:])
	if err != nil || tagNum != 3 || class != TagClassContext || length != -1 {
		return nil, ErrInvalidResponse
	}
	offset++

	return decodePropertyValue(data[offset:])
}

// decodePropertyValue decodes one application-tagged value.
func decodePropertyValue(data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, ErrInvalidResponse
	}

	tagNum, class, length, headerLen, err := DecodeTagNumber(data)
	if err != nil {
		return nil, err
	}
	if length == -2 {
		return nil, nil
	}
	if class != TagClassApplication {
		return data[headerLen : headerLen+length], nil
	}

	valueData := data[headerLen : headerLen+length]
	switch ApplicationTag(tagNum) {
	case TagNull:
		return nil, nil
	case TagBoolean:
		return length == 1, nil
	case TagUnsignedInt:
		return DecodeUnsigned(valueData), nil
	case TagSignedInt:
		return DecodeSigned(valueData), nil
	case TagReal:
		return DecodeReal(valueData), nil
	case TagDouble:
		return DecodeDouble(valueData), nil
	case TagOctetString:
		return valueData, nil
	case TagCharacterString:
		return DecodeCharacterString(valueData), nil
	case TagEnumerated:
		return DecodeUnsigned(valueData), nil
	case TagObjectID:
		return DecodeObjectIdentifierFromBytes(valueData), nil
	default:
		return unknownApplicationTag{Num: tagNum}, nil
	}
}

// unknownApplicationTag carries an application tag number decodePropertyValue
// doesn't know how to interpret, so formatPropertyValue can still render
// something instead of silently dropping the value.
type unknownApplicationTag struct {
	Num uint8
}

func formatPropertyValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "N/A"
	case unknownApplicationTag:
		return fmt.Sprintf("Tag 0x%02X", v.Num)
	case bool:
		if v {
			return "active"
		}
		return "inactive"
	case float32:
		return fmt.Sprintf("%.2f", v)
	case float64:
		return fmt.Sprintf("%.2f", v)
	case uint32:
		return fmt.Sprintf("%d", v)
	case int32:
		return fmt.Sprintf("%d", v)
	case string:
		return v
	case ObjectIdentifier:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Shutdown cancels all in-flight requests, stops polling, stops the
// receiver loops, and closes both sockets. It waits for the receiver
// goroutines to exit or ctx to be cancelled, whichever comes first.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.DisablePolling()
	e.dispatcher.Shutdown()
	e.cancel()
	e.sockets.Close()

	done := make(chan error, 1)
	go func() { done <- e.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
