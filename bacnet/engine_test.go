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

func TestDecodeReadPropertyResponsePresentValue(t *testing.T) {
	objectID := NewObjectIdentifier(ObjectTypeAnalogInput, 1)

	var body []byte
	body = append(body, EncodeContextObjectIdentifier(0, objectID)...)
	body = append(body, EncodeContextEnumerated(1, uint32(PropertyPresentValue))...)
	body = append(body, EncodeOpeningTag(3)...)
	body = append(body, EncodeRealTag(72.5)...)
	body = append(body, EncodeClosingTag(3)...)

	value, err := decodeReadPropertyResponse(body)
	require.NoError(t, err)
	assert.InDelta(t, float32(72.5), value.(float32), 0.001)
	assert.Equal(t, "72.50", formatPropertyValue(value))
}

func TestReadPresentValueRendersTwoDecimals(t *testing.T) {
	// Real 0x44 41 B4 00 00 -> 22.5, rendered with two decimal places.
	value, err := decodePropertyValue(EncodeRealTag(22.5))
	require.NoError(t, err)
	assert.Equal(t, "22.50", formatPropertyValue(value))
}

func TestDecodeReadPropertyResponseWithArrayIndex(t *testing.T) {
	objectID := NewObjectIdentifier(ObjectTypeAnalogInput, 1)

	var body []byte
	body = append(body, EncodeContextObjectIdentifier(0, objectID)...)
	body = append(body, EncodeContextEnumerated(1, uint32(PropertyPresentValue))...)
	body = append(body, EncodeContextUnsigned(2, 3)...)
	body = append(body, EncodeOpeningTag(3)...)
	body = append(body, EncodeRealTag(42.0)...)
	body = append(body, EncodeClosingTag(3)...)

	value, err := decodeReadPropertyResponse(body)
	require.NoError(t, err)
	assert.InDelta(t, float32(42.0), value.(float32), 0.001)
}

func TestFormatPropertyValue(t *testing.T) {
	assert.Equal(t, "active", formatPropertyValue(true))
	assert.Equal(t, "inactive", formatPropertyValue(false))
	assert.Equal(t, "72.50", formatPropertyValue(float32(72.5)))
	assert.Equal(t, "N/A", formatPropertyValue(nil))
	assert.Equal(t, "Tag 0x0D", formatPropertyValue(unknownApplicationTag{Num: 0x0D}))
}

func TestDecodeObjectListRoundTrip(t *testing.T) {
	device := NewObjectIdentifier(ObjectTypeDevice, 100)
	ai1 := NewObjectIdentifier(ObjectTypeAnalogInput, 1)
	bv2 := NewObjectIdentifier(ObjectTypeBinaryValue, 2)

	var body []byte
	body = append(body, EncodeContextObjectIdentifier(0, device)...)
	body = append(body, EncodeOpeningTag(1)...)
	body = append(body, EncodeContextEnumerated(2, uint32(PropertyObjectList))...)
	body = append(body, EncodeOpeningTag(4)...)
	body = append(body, EncodeObjectIdentifierTag(device)...)
	body = append(body, EncodeObjectIdentifierTag(ai1)...)
	body = append(body, EncodeObjectIdentifierTag(bv2)...)
	body = append(body, EncodeClosingTag(4)...)
	body = append(body, EncodeClosingTag(1)...)

	objects, err := decodeObjectList(body)
	require.NoError(t, err)
	assert.Equal(t, []ObjectIdentifier{device, ai1, bv2}, objects, "decodeObjectList returns the raw property contents, unfiltered")

	assert.Equal(t, []ObjectIdentifier{ai1, bv2}, filterNonDeviceObjects(objects))
}

func TestDecodeBACnetErrorResponse(t *testing.T) {
	var body []byte
	body = append(body, EncodeEnumeratedTag(uint32(ErrorClassProperty))...)
	body = append(body, EncodeEnumeratedTag(uint32(ErrorCodeUnknownProperty))...)

	err := decodeBACnetError(body)
	var bacErr *BACnetError
	require.ErrorAs(t, err, &bacErr)
	assert.Equal(t, ErrorClassProperty, bacErr.Class)
	assert.Equal(t, ErrorCodeUnknownProperty, bacErr.Code)
}
