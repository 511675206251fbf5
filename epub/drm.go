package epub

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	encryptionFilePath = "META-INF/encryption.xml"

	// sinfFilePath is only present in Apple FairPlay protected books.
	sinfFilePath = "META-INF/sinf.xml"
)

// Font obfuscation is not DRM: the text stays readable.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

var drmSignatures = map[string]string{
	"http://ns.adobe.com/adept":      "Adobe ADEPT",
	"http://readium.org/2014/01/lcp": "Readium LCP",
}

type xmlEncryption struct {
	XMLName       xml.Name           `xml:"encryption"`
	EncryptedData []xmlEncryptedData `xml:"EncryptedData"`
}

type xmlEncryptedData struct {
	EncryptionMethod struct {
		Algorithm string `xml:"Algorithm,attr"`
	} `xml:"EncryptionMethod"`
	KeyInfo struct {
		InnerXML string `xml:",innerxml"`
	} `xml:"KeyInfo"`
}

// checkDRM inspects the archive's encryption descriptors.
//
// It returns ErrDRMProtected when content is encrypted, and
// fontObfuscation=true when only embedded fonts are obfuscated. An
// encryption.xml that cannot be parsed is treated as DRM.
func checkDRM(ix *archiveIndex) (fontObfuscation bool, err error) {
	if ix.find(sinfFilePath) != nil {
		return false, fmt.Errorf("%w (Apple FairPlay)", ErrDRMProtected)
	}

	data, rerr := ix.read(encryptionFilePath)
	if rerr != nil {
		return false, nil
	}

	var enc xmlEncryption
	if err := xml.Unmarshal(stripBOM(data), &enc); err != nil {
		return false, ErrDRMProtected
	}

	for _, ed := range enc.EncryptedData {
		algo := ed.EncryptionMethod.Algorithm
		if fontObfuscationAlgorithms[algo] {
			fontObfuscation = true
			continue
		}
		if scheme := drmScheme(algo + ed.KeyInfo.InnerXML); scheme != "" {
			return false, fmt.Errorf("%w (%s)", ErrDRMProtected, scheme)
		}
		// Unrecognised content encryption is still unreadable.
		return false, ErrDRMProtected
	}
	return fontObfuscation, nil
}

// drmScheme returns the name of the DRM scheme referenced in s, or "".
func drmScheme(s string) string {
	for sig, name := range drmSignatures {
		if strings.Contains(s, sig) {
			return name
		}
	}
	return ""
}
