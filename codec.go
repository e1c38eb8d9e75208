package cascade

/*
   Copyright 2024 Tidemark Labs

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

import (
	"encoding"
	"strconv"
)

// Encodable is implemented by product values that define their own
// serialized form for output sinks.
type Encodable interface {
	EncodeProduct() (data []byte, err error)
}

// EncodeProduct serializes a product value for an output sink. Values
// implementing Encodable or encoding.BinaryMarshaler encode
// themselves; byte slices, strings, numbers and booleans encode to
// their raw or decimal form. Values of other types report ok false and
// are skipped by sinks.
func EncodeProduct(v any) (data []byte, ok bool, err error) {
	switch value := v.(type) {
	case Encodable:
		data, err = value.EncodeProduct()
	case encoding.BinaryMarshaler:
		data, err = value.MarshalBinary()
	case []byte:
		data = value
	case string:
		data = []byte(value)
	case int:
		data = strconv.AppendInt(nil, int64(value), 10)
	case int64:
		data = strconv.AppendInt(nil, value, 10)
	case uint64:
		data = strconv.AppendUint(nil, value, 10)
	case float64:
		data = strconv.AppendFloat(nil, value, 'g', -1, 64)
	case bool:
		data = strconv.AppendBool(nil, value)
	default:
		return nil, false, nil
	}

	return data, err == nil, err
}
