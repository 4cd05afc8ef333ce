// Copyright 2025 Poiesic Systems
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

package badger

import (
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
)

// Key prefixes. Every data key is prefixed with the 8-byte database ID
// followed by the 8-byte store ID, so a database's data can be dropped by prefix.
const (
	metaPrefix      = "m:"
	recordPrefix    = 'r'
	indexPrefix     = 'i'
	generatorPrefix = 'g'
)

// databaseID derives the key prefix of a database from its name.
func databaseID(name string) []byte {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(name))
	return h.Sum(nil)
}

// makeMetaKey generates the key holding a database's schema.
// Format: m:name
func makeMetaKey(name string) []byte {
	return []byte(metaPrefix + name)
}

// makeDatabasePrefix generates the prefix of every key of one kind in a database.
// Format: kind dbID
func makeDatabasePrefix(kind byte, dbID []byte) []byte {
	buf := make([]byte, 1+len(dbID))
	buf[0] = kind
	copy(buf[1:], dbID)
	return buf
}

// makeStorePrefix generates the prefix of a store's records.
// Format: r dbID storeID
func makeStorePrefix(dbID []byte, storeID uint64) []byte {
	return appendUint64(makeDatabasePrefix(recordPrefix, dbID), storeID)
}

// makeRecordKey generates the key of one record.
// Format: r dbID storeID encodedKey
func makeRecordKey(dbID []byte, storeID uint64, encodedKey []byte) []byte {
	return append(makeStorePrefix(dbID, storeID), encodedKey...)
}

// makeIndexPrefix generates the prefix of an index's entries.
// Format: i dbID storeID indexID
func makeIndexPrefix(dbID []byte, storeID, indexID uint64) []byte {
	return appendUint64(appendUint64(makeDatabasePrefix(indexPrefix, dbID), storeID), indexID)
}

// makeIndexStorePrefix generates the prefix of every index entry of a store.
// Format: i dbID storeID
func makeIndexStorePrefix(dbID []byte, storeID uint64) []byte {
	return appendUint64(makeDatabasePrefix(indexPrefix, dbID), storeID)
}

// makeIndexKey generates the key of one index entry. The primary key suffix
// keeps entries of non-unique indexes distinct and ordered by primary key.
// Format: i dbID storeID indexID encodedIndexKey encodedPrimaryKey
func makeIndexKey(dbID []byte, storeID, indexID uint64, encodedIndexKey, encodedPrimaryKey []byte) []byte {
	buf := makeIndexPrefix(dbID, storeID, indexID)
	buf = append(buf, encodedIndexKey...)
	return append(buf, encodedPrimaryKey...)
}

// makeGeneratorKey generates the key holding a store's key generator.
// Format: g dbID storeID
func makeGeneratorKey(dbID []byte, storeID uint64) []byte {
	return appendUint64(makeDatabasePrefix(generatorPrefix, dbID), storeID)
}

// Write in BigEndian order so lexicographic sort works correctly
func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}
