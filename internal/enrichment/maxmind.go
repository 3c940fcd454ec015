package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/pterm/pterm"
)

// MaxMindResolver answers lookups from local GeoLite2 databases, producing
// the same keys as ipinfo.io so reports look alike whichever source answered.
type MaxMindResolver struct {
	cityDB *geoip2.Reader
	asnDB  *geoip2.Reader
	logger *pterm.Logger
}

// NewMaxMindResolver opens whichever of the City and ASN databases are
// available. It fails only when neither could be opened.
func NewMaxMindResolver(cityDBPath, asnDBPath string, logger *pterm.Logger) (*MaxMindResolver, error) {
	resolver := &MaxMindResolver{logger: logger}

	if cityDBPath != "" {
		cityDB, err := geoip2.Open(cityDBPath)
		if err != nil {
			logger.Warn("GeoIP City database not available",
				logger.Args("path", cityDBPath, "error", err))
		} else {
			resolver.cityDB = cityDB
			logger.Info("Loaded GeoIP City database", logger.Args("path", cityDBPath))
		}
	}

	if asnDBPath != "" {
		asnDB, err := geoip2.Open(asnDBPath)
		if err != nil {
			logger.Warn("GeoIP ASN database not available",
				logger.Args("path", asnDBPath, "error", err))
		} else {
			resolver.asnDB = asnDB
			logger.Info("Loaded GeoIP ASN database", logger.Args("path", asnDBPath))
		}
	}

	if resolver.cityDB == nil && resolver.asnDB == nil {
		return nil, errors.New("no GeoIP database could be opened")
	}
	return resolver, nil
}

func (m *MaxMindResolver) Name() string {
	return "maxmind"
}

func (m *MaxMindResolver) Resolve(_ context.Context, ipStr string) (GeoInfo, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, ipStr)
	}

	info := GeoInfo{}

	if m.cityDB != nil {
		record, err := m.cityDB.City(ip)
		if err == nil {
			setIfNotEmpty(info, "city", record.City.Names["en"])
			if len(record.Subdivisions) > 0 {
				setIfNotEmpty(info, "region", record.Subdivisions[0].Names["en"])
			}
			setIfNotEmpty(info, "country", record.Country.IsoCode)
			setIfNotEmpty(info, "postal", record.Postal.Code)
			setIfNotEmpty(info, "timezone", record.Location.TimeZone)
			if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
				info["loc"] = fmt.Sprintf("%.4f,%.4f", record.Location.Latitude, record.Location.Longitude)
			}
		} else {
			m.logger.Debug("GeoIP City lookup failed", m.logger.Args("ip", ipStr, "error", err))
		}
	}

	if m.asnDB != nil {
		record, err := m.asnDB.ASN(ip)
		if err == nil && record.AutonomousSystemNumber != 0 {
			info["org"] = fmt.Sprintf("AS%d %s", record.AutonomousSystemNumber, record.AutonomousSystemOrganization)
		} else if err != nil {
			m.logger.Debug("GeoIP ASN lookup failed", m.logger.Args("ip", ipStr, "error", err))
		}
	}

	if len(info) == 0 {
		return nil, ErrNoData
	}
	info["ip"] = ipStr
	return info, nil
}

// Close closes the GeoIP databases
func (m *MaxMindResolver) Close() error {
	var errs []error
	if m.cityDB != nil {
		errs = append(errs, m.cityDB.Close())
	}
	if m.asnDB != nil {
		errs = append(errs, m.asnDB.Close())
	}
	return errors.Join(errs...)
}

func setIfNotEmpty(info GeoInfo, key, value string) {
	if value != "" {
		info[key] = value
	}
}
