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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBVLCRoundTrip(t *testing.T) {
	header := EncodeBVLC(BVLCOriginalUnicastNPDU, 12)
	decoded, err := DecodeBVLC(header)
	require.NoError(t, err)
	assert.Equal(t, BVLCTypeBACnetIP, decoded.Type)
	assert.Equal(t, BVLCOriginalUnicastNPDU, decoded.Function)
	assert.EqualValues(t, 16, decoded.Length)
}

func TestDecodeBVLCRejectsShortInput(t *testing.T) {
	_, err := DecodeBVLC([]byte{0x81, 0x0a})
	assert.ErrorIs(t, err, ErrInvalidBVLC)
}

func TestDecodeBVLCRejectsWrongTypeByte(t *testing.T) {
	_, err := DecodeBVLC([]byte{0x82, 0x0a, 0x00, 0x04})
	assert.ErrorIs(t, err, ErrInvalidBVLC)
}

func TestWhoIsEncodeDecodeRoundTrip(t *testing.T) {
	low, high := uint32(100), uint32(200)
	body := EncodeWhoIs(&low, &high)
	assert.NotEmpty(t, body)

	npdu := EncodeNPDU(false, NPDUControlPriorityNormal)
	apdu := EncodeUnconfirmedRequest(ServiceWhoIs, body)
	decodedNPDU, consumed, err := DecodeNPDU(npdu)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), decodedNPDU.Version)
	assert.Equal(t, len(npdu), consumed)

	decodedAPDU, err := DecodeAPDU(apdu)
	require.NoError(t, err)
	assert.Equal(t, PDUTypeUnconfirmedRequest, decodedAPDU.Type)
	assert.Equal(t, uint8(ServiceWhoIs), decodedAPDU.Service)
}

func TestEncodeDecodeIAm(t *testing.T) {
	deviceID := NewObjectIdentifier(ObjectTypeDevice, 1234)

	var body []byte
	body = append(body, EncodeObjectIdentifierTag(deviceID)...)
	body = append(body, EncodeUnsignedTag(1476)...)
	body = append(body, EncodeEnumeratedTag(uint32(SegmentationNone))...)
	body = append(body, EncodeUnsignedTag(260)...)

	iam, err := DecodeIAm(body)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), iam.DeviceID.Instance)
	assert.Equal(t, ObjectTypeDevice, iam.DeviceID.Type)
	assert.EqualValues(t, 1476, iam.MaxAPDULength)
	assert.Equal(t, SegmentationNone, iam.Segmentation)
	assert.EqualValues(t, 260, iam.VendorID)
}

func TestDecodeIAmRejectsTruncatedBody(t *testing.T) {
	deviceID := NewObjectIdentifier(ObjectTypeDevice, 1234)
	body := EncodeObjectIdentifierTag(deviceID)

	_, err := DecodeIAm(body)
	assert.ErrorIs(t, err, ErrInvalidAPDU)
}

func TestDecodeIAmRejectsWrongFirstTag(t *testing.T) {
	body := EncodeUnsignedTag(42)
	_, err := DecodeIAm(body)
	assert.ErrorIs(t, err, ErrInvalidAPDU)
}

func TestObjectIdentifierEncodeDecode(t *testing.T) {
	oid := NewObjectIdentifier(ObjectTypeAnalogInput, 7)
	encoded := oid.Encode()
	decoded := DecodeObjectIdentifier(encoded)
	assert.Equal(t, oid, decoded)
	assert.Equal(t, "analog-input:7", oid.String())
}

func TestDecodeTagNumberExtendedLength(t *testing.T) {
	// Application-tagged character string with a length requiring the
	// extended-length byte (> 4).
	tagged := EncodeCharacterStringTag("hello world")
	tagNum, class, length, headerLen, err := DecodeTagNumber(tagged)
	require.NoError(t, err)
	assert.Equal(t, TagClassApplication, class)
	assert.Equal(t, uint8(TagCharacterString), tagNum)
	assert.Greater(t, length, 4)
	assert.Less(t, headerLen, len(tagged))
}

func TestDecodeTagNumberOpeningClosingSentinels(t *testing.T) {
	opening := EncodeOpeningTag(3)
	_, class, length, _, err := DecodeTagNumber(opening)
	require.NoError(t, err)
	assert.Equal(t, TagClassContext, class)
	assert.Equal(t, -1, length)

	closing := EncodeClosingTag(3)
	_, class, length, _, err = DecodeTagNumber(closing)
	require.NoError(t, err)
	assert.Equal(t, TagClassContext, class)
	assert.Equal(t, -2, length)
}

func TestDecodeAPDURejectsEmptyInput(t *testing.T) {
	_, err := DecodeAPDU(nil)
	assert.Error(t, err)
}
