// Package sdp builds and parses the ANNOUNCE body, a session description
// with a single audio media section carrying AirPlay's codec parameters
// and (RAOP) its RSA-wrapped AES key, per spec.md 4.G. It is a thin
// AirPlay-specific layer over github.com/pion/sdp/v3, the same library
// the teacher (bluenviron/gortsplib) uses for its own pkg/description.
package sdp

import (
	"fmt"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// Codec identifies the audio codec named in the rtpmap attribute.
type Codec string

// Codecs named in spec.md 4.G.
const (
	CodecALAC Codec = "AppleLossless"
	CodecPCM  Codec = "L16"
	CodecAAC  Codec = "mpeg4-generic"
)

// Description is the AirPlay-specific content of an ANNOUNCE body: one
// audio media section plus the attributes spec.md 4.G requires.
type Description struct {
	PayloadType     uint8
	Codec           Codec
	SampleRate      int
	Channels        int
	BitDepth        int
	FramesPerPacket int

	// RSAAESKeyBase64 and AESIVBase64 are present on RAOP (AirPlay 1) sessions: the
	// base64 RSA-OAEP-wrapped AES key and the base64 AES IV.
	RSAAESKeyBase64 string
	AESIVBase64     string

	// MinLatencySamples is optional, zero means absent.
	MinLatencySamples int
}

// Build renders the Description as an ANNOUNCE body.
func Build(desc Description, sessionID uint64, originAddress string) ([]byte, error) {
	media := psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   "audio",
			Port:    psdp.RangedPort{Value: 0},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{strconv.Itoa(int(desc.PayloadType))},
		},
	}

	media.Attributes = append(media.Attributes, psdp.Attribute{
		Key:   "rtpmap",
		Value: fmt.Sprintf("%d %s", desc.PayloadType, rtpmapEncoding(desc)),
	})

	media.Attributes = append(media.Attributes, psdp.Attribute{
		Key: "fmtp",
		Value: fmt.Sprintf("%d %d 0 %d 40 10 14 %d 255 0 0 %d",
			desc.PayloadType, desc.FramesPerPacket, desc.BitDepth, desc.Channels, desc.SampleRate),
	})

	if desc.RSAAESKeyBase64 != "" {
		media.Attributes = append(media.Attributes, psdp.Attribute{Key: "rsaaeskey", Value: desc.RSAAESKeyBase64})
	}
	if desc.AESIVBase64 != "" {
		media.Attributes = append(media.Attributes, psdp.Attribute{Key: "aesiv", Value: desc.AESIVBase64})
	}
	if desc.MinLatencySamples > 0 {
		media.Attributes = append(media.Attributes, psdp.Attribute{Key: "min-latency", Value: strconv.Itoa(desc.MinLatencySamples)})
	}

	out := &psdp.SessionDescription{
		Version: 0,
		Origin: psdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: originAddress,
		},
		SessionName: "AirTunes",
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: originAddress},
		},
		TimeDescriptions:  []psdp.TimeDescription{{Timing: psdp.Timing{StartTime: 0, StopTime: 0}}},
		MediaDescriptions: []*psdp.MediaDescription{&media},
	}

	return out.Marshal()
}

func rtpmapEncoding(desc Description) string {
	if desc.Codec == CodecPCM {
		return fmt.Sprintf("L16/%d/%d", desc.SampleRate, desc.Channels)
	}
	return string(desc.Codec)
}

// Parse extracts a Description from an ANNOUNCE body.
func Parse(body []byte) (*Description, error) {
	var sd psdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, liberrors.ErrProtocol{Where: "sdp", Err: err}
	}
	if len(sd.MediaDescriptions) != 1 || sd.MediaDescriptions[0].MediaName.Media != "audio" {
		return nil, liberrors.ErrProtocol{Where: "sdp", Err: errNoAudioSection{}}
	}
	md := sd.MediaDescriptions[0]

	desc := &Description{}
	if len(md.MediaName.Formats) > 0 {
		pt, err := strconv.Atoi(md.MediaName.Formats[0])
		if err != nil {
			return nil, liberrors.ErrProtocol{Where: "sdp", Err: err}
		}
		desc.PayloadType = uint8(pt)
	}

	for _, a := range md.Attributes {
		switch a.Key {
		case "rtpmap":
			if err := parseRtpmap(a.Value, desc); err != nil {
				return nil, liberrors.ErrProtocol{Where: "sdp", Err: err}
			}
		case "fmtp":
			if err := parseFmtp(a.Value, desc); err != nil {
				return nil, liberrors.ErrProtocol{Where: "sdp", Err: err}
			}
		case "rsaaeskey":
			desc.RSAAESKeyBase64 = a.Value
		case "aesiv":
			desc.AESIVBase64 = a.Value
		case "min-latency":
			n, err := strconv.Atoi(a.Value)
			if err == nil {
				desc.MinLatencySamples = n
			}
		}
	}

	return desc, nil
}

type errNoAudioSection struct{}

func (errNoAudioSection) Error() string { return "ANNOUNCE body has no audio media section" }

func parseRtpmap(value string, desc *Description) error {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return fmt.Errorf("malformed rtpmap %q", value)
	}
	encoding := fields[1]
	if strings.HasPrefix(encoding, "L16/") {
		desc.Codec = CodecPCM
		parts := strings.Split(encoding[len("L16/"):], "/")
		if len(parts) >= 1 {
			if n, err := strconv.Atoi(parts[0]); err == nil {
				desc.SampleRate = n
			}
		}
		if len(parts) >= 2 {
			if n, err := strconv.Atoi(parts[1]); err == nil {
				desc.Channels = n
			}
		}
		desc.BitDepth = 16
		return nil
	}
	desc.Codec = Codec(encoding)
	return nil
}

func parseFmtp(value string, desc *Description) error {
	fields := strings.Fields(value)
	// <payload> <frames_per_packet> 0 <bit_depth> 40 10 14 <channels> 255 0 0 <sample_rate>
	if len(fields) < 12 {
		return fmt.Errorf("malformed fmtp %q", value)
	}
	framesPerPacket, err := strconv.Atoi(fields[1])
	if err != nil {
		return err
	}
	bitDepth, err := strconv.Atoi(fields[3])
	if err != nil {
		return err
	}
	channels, err := strconv.Atoi(fields[7])
	if err != nil {
		return err
	}
	sampleRate, err := strconv.Atoi(fields[11])
	if err != nil {
		return err
	}
	desc.FramesPerPacket = framesPerPacket
	desc.BitDepth = bitDepth
	desc.Channels = channels
	desc.SampleRate = sampleRate
	return nil
}
