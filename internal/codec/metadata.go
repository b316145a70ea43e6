package codec

import (
	"fmt"
	"unicode/utf8"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// metadataHeaderSize covers [creator:33][registryDigest:32].
const metadataHeaderSize = domain.OwnerKeySize + domain.DigestSize

// MaxDetailsSize bounds the free-form market description.
const MaxDetailsSize = 1024

// ValidateDetails checks that details fit in metadata.
func ValidateDetails(details string) error {
	if len(details) > MaxDetailsSize {
		return fmt.Errorf("codec: details: %d bytes exceed %d: %w", len(details), MaxDetailsSize, domain.ErrMalformed)
	}
	if !utf8.ValidString(details) {
		return fmt.Errorf("codec: details are not utf-8: %w", domain.ErrMalformed)
	}
	return nil
}

// EncodeMetadata serializes market metadata as [creator:33][registryDigest:32][details].
func EncodeMetadata(info domain.MarketInfo) []byte {
	out := make([]byte, 0, metadataHeaderSize+len(info.Details))
	out = append(out, info.Creator[:]...)
	out = append(out, info.RegistryDigest[:]...)
	out = append(out, info.Details...)
	return out
}

// DecodeMetadata is the inverse of EncodeMetadata.
func DecodeMetadata(b []byte) (domain.MarketInfo, error) {
	if len(b) < metadataHeaderSize {
		return domain.MarketInfo{}, fmt.Errorf("codec: metadata: %d bytes: %w", len(b), domain.ErrMalformed)
	}
	details := b[metadataHeaderSize:]
	if !utf8.Valid(details) {
		return domain.MarketInfo{}, fmt.Errorf("codec: metadata: details are not utf-8: %w", domain.ErrMalformed)
	}
	var info domain.MarketInfo
	copy(info.Creator[:], b[:domain.OwnerKeySize])
	copy(info.RegistryDigest[:], b[domain.OwnerKeySize:metadataHeaderSize])
	info.Details = string(details)
	return info, nil
}
