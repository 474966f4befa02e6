// Package sdproto is the Sheepdog wire codec: fixed 48-byte request/response
// messages (16-byte common header + 32-byte opcode body), the flat
// SD_INODE_SIZE inode layout, and the OID bit-layout helpers. Every field is
// encoded/decoded explicitly with encoding/binary in little-endian order;
// nothing here relies on struct layout matching the wire, since Go gives no
// such guarantee across platforms.
package sdproto
