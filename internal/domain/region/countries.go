package region

// Countries is the built-in table of country centroids.
var Countries = NewTable(
	Country{"US", "United States", 37.0902, -95.7129},
	Country{"GB", "United Kingdom", 55.3781, -3.4360},
	Country{"CA", "Canada", 56.1304, -106.3468},
	Country{"AU", "Australia", -25.2744, 133.7751},
	Country{"DE", "Germany", 51.1657, 10.4515},
	Country{"FR", "France", 46.2276, 2.2137},
	Country{"IT", "Italy", 41.8719, 12.5674},
	Country{"ES", "Spain", 40.4637, -3.7492},
	Country{"MX", "Mexico", 23.6345, -102.5528},
	Country{"BR", "Brazil", -14.2350, -51.9253},
	Country{"AR", "Argentina", -38.4161, -63.6167},
	Country{"JP", "Japan", 36.2048, 138.2529},
	Country{"KR", "South Korea", 35.9078, 127.7669},
	Country{"CN", "China", 35.8617, 104.1954},
	Country{"IN", "India", 20.5937, 78.9629},
	Country{"RU", "Russia", 61.5240, 105.3188},
	Country{"SE", "Sweden", 60.1282, 18.6435},
	Country{"NO", "Norway", 60.4720, 8.4689},
	Country{"DK", "Denmark", 56.2639, 9.5018},
	Country{"FI", "Finland", 61.9241, 25.7482},
	Country{"NL", "Netherlands", 52.1326, 5.2913},
	Country{"BE", "Belgium", 50.5039, 4.4699},
	Country{"CH", "Switzerland", 46.8182, 8.2275},
	Country{"AT", "Austria", 47.5162, 14.5501},
	Country{"PL", "Poland", 51.9194, 19.1451},
	Country{"PT", "Portugal", 39.3999, -8.2245},
	Country{"GR", "Greece", 39.0742, 21.8243},
	Country{"TR", "Turkey", 38.9637, 35.2433},
	Country{"ZA", "South Africa", -30.5595, 22.9375},
	Country{"NZ", "New Zealand", -40.9006, 174.8860},
	Country{"SG", "Singapore", 1.3521, 103.8198},
	Country{"TH", "Thailand", 15.8700, 100.9925},
	Country{"ID", "Indonesia", -0.7893, 113.9213},
	Country{"MY", "Malaysia", 4.2105, 101.9758},
	Country{"PH", "Philippines", 12.8797, 121.7740},
	Country{"VN", "Vietnam", 14.0583, 108.2772},
	Country{"AE", "United Arab Emirates", 23.4241, 53.8478},
	Country{"SA", "Saudi Arabia", 23.8859, 45.0792},
	Country{"IL", "Israel", 31.0461, 34.8516},
	Country{"EG", "Egypt", 26.8206, 30.8025},
	Country{"NG", "Nigeria", 9.0820, 8.6753},
	Country{"KE", "Kenya", -0.0236, 37.9062},
	Country{"CL", "Chile", -35.6751, -71.5430},
	Country{"CO", "Colombia", 4.5709, -74.2973},
	Country{"PE", "Peru", -9.1900, -75.0152},
	Country{"VE", "Venezuela", 6.4238, -66.5897},
	Country{"IE", "Ireland", 53.4129, -8.2439},
	Country{"CZ", "Czech Republic", 49.8175, 15.4730},
	Country{"HU", "Hungary", 47.1625, 19.5033},
	Country{"RO", "Romania", 45.9432, 24.9668},
	Country{"UA", "Ukraine", 48.3794, 31.1656},
)
