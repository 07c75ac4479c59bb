/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package protocol

import (
	"bytes"
	"fmt"
)

// DelayReq is the slave-initiated message used to measure one-way delay.
// It shares Sync's body layout (IEEE 1588-2002 §7.3).
type DelayReq struct {
	Header
	SyncBody
}

var _ Packet = (*DelayReq)(nil)

// MessageType implements Packet.
func (d *DelayReq) MessageType() MessageType { return MessageDelayReq }

func (d *DelayReq) bodyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.SyncBody.pack(&buf); err != nil {
		return nil, err
	}
	if buf.Len() != syncBodyLength {
		return nil, fmt.Errorf("delay-req body length %d, want %d", buf.Len(), syncBodyLength)
	}
	return buf.Bytes(), nil
}

func (d *DelayReq) unpackBody(r *bytes.Reader) error {
	return d.SyncBody.unpack(r)
}
