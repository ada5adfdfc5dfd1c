package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the program serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// all previously computed content hashes and every cache keyed by them.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Node tags. Each tag uniquely identifies a node kind in the serialized
// byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Literal values
	TagStringLiteral    byte = 0x01
	TagIntegerLiteral   byte = 0x02
	TagUnsignedLiteral  byte = 0x03
	TagFloatLiteral     byte = 0x04
	TagBooleanLiteral   byte = 0x05
	TagNullLiteral      byte = 0x06
	TagUndefinedLiteral byte = 0x07
	TagArrayLiteral     byte = 0x08
	TagObject           byte = 0x09
	TagProperty         byte = 0x0A
	TagGetter           byte = 0x0B
	TagSetter           byte = 0x0C

	// Names
	TagIdentifier byte = 0x0D
	TagThis       byte = 0x0E
	TagMeta       byte = 0x0F

	// Expressions
	TagBinary   byte = 0x10
	TagUnary    byte = 0x11
	TagTernary  byte = 0x12
	TagMember   byte = 0x13
	TagCall     byte = 0x14
	TagNew      byte = 0x15
	TagSequence byte = 0x16
	TagFunction byte = 0x17

	// Statements / structure
	TagBlock               byte = 0x20
	TagIf                  byte = 0x21
	TagFor                 byte = 0x22
	TagWhile               byte = 0x23
	TagDeclaration         byte = 0x24
	TagReturn              byte = 0x25
	TagBreak               byte = 0x26
	TagContinue            byte = 0x27
	TagLabelled            byte = 0x28
	TagFunctionDeclaration byte = 0x29
	TagExprStmt            byte = 0x2A
	TagEmpty               byte = 0x2B
	TagList                byte = 0x2C
	TagProgram             byte = 0x2D

	// Placeholder for an absent optional child
	TagAbsent byte = 0x30

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagStringLiteral, TagIntegerLiteral, TagUnsignedLiteral, TagFloatLiteral,
	TagBooleanLiteral, TagNullLiteral, TagUndefinedLiteral, TagArrayLiteral,
	TagObject, TagProperty, TagGetter, TagSetter,
	TagIdentifier, TagThis, TagMeta,
	TagBinary, TagUnary, TagTernary, TagMember, TagCall, TagNew, TagSequence, TagFunction,
	TagBlock, TagIf, TagFor, TagWhile, TagDeclaration, TagReturn, TagBreak, TagContinue,
	TagLabelled, TagFunctionDeclaration, TagExprStmt, TagEmpty, TagList, TagProgram,
	TagAbsent,
}
