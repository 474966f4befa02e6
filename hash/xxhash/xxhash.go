package xxhash

import (
	"github.com/OneOfOne/xxhash"

	"github.com/sdstack/sdbs/hash"
)

func init() {
	hash.RegisterHash("xxhash", &xxhash.XXHash64{})
}
