package graphstore

const (
	cypherCityConstraint    = `CREATE CONSTRAINT city_unique IF NOT EXISTS FOR (c:City) REQUIRE c.name IS UNIQUE`
	cypherCountryConstraint = `CREATE CONSTRAINT country_unique IF NOT EXISTS FOR (c:Country) REQUIRE c.name IS UNIQUE`

	cypherUpsertBatch = `
UNWIND $rows AS row
MERGE (co:Country {name: row.country})
  ON CREATE SET co.created = timestamp()
MERGE (ci:City {name: row.city})
  ON CREATE SET ci.latitude = row.lat, ci.longitude = row.lon, ci.region = row.region
  ON MATCH SET ci.latitude = coalesce(row.lat, ci.latitude),
               ci.longitude = coalesce(row.lon, ci.longitude),
               ci.region = coalesce(row.region, ci.region)
MERGE (co)-[:HAS_CITY]->(ci)`

	// Each unordered pair is visited once via id(a) < id(b); both directions
	// are merged with identical properties.
	cypherCreateRoutes = `
WITH $threshold AS D
MATCH (a:City), (b:City)
WHERE a.name <> b.name AND id(a) < id(b)
  AND a.latitude IS NOT NULL AND b.latitude IS NOT NULL
  AND a.longitude IS NOT NULL AND b.longitude IS NOT NULL
WITH a, b, D,
  2 * 6371 * asin(sqrt(
    sin(radians((a.latitude - b.latitude) / 2))^2 +
    cos(radians(a.latitude)) * cos(radians(b.latitude)) *
    sin(radians((a.longitude - b.longitude) / 2))^2
  )) AS km
WHERE km <= D
MERGE (a)-[r:ROUTE]->(b)
SET r.distance = round(km, 1),
    r.travel_time_hours = round(round(km, 1) / 80.0, 2)
MERGE (b)-[r2:ROUTE]->(a)
SET r2.distance = round(km, 1),
    r2.travel_time_hours = round(round(km, 1) / 80.0, 2)
RETURN count(*) AS pairs`

	cypherDropProjection = `CALL gds.graph.drop($name) YIELD graphName RETURN graphName`

	cypherProjectRoutes = `
CALL gds.graph.project($name, 'City', {ROUTE: {properties: ['distance']}})
YIELD graphName, nodeCount, relationshipCount
RETURN graphName, nodeCount, relationshipCount`
)
